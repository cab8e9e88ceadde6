package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
)

const (
	TicketAvailable = "AVAILABLE"
	TicketReserved  = "RESERVED"
	TicketSold      = "SOLD"
)

type Ticket struct {
	ID            string    `json:"id"`
	RaffleID      string    `json:"raffle_id"`
	Number        int       `json:"number"`
	Status        string    `json:"status"` // AVAILABLE, RESERVED, SOLD
	OrderID       string    `json:"order_id,omitempty"`
	ReservedUntil time.Time `json:"reserved_until,omitzero"`
}

func TicketFromRecord(rec *core.Record) *Ticket {
	return &Ticket{
		ID:            rec.Id,
		RaffleID:      rec.GetString("raffle"),
		Number:        rec.GetInt("number"),
		Status:        rec.GetString("status"),
		OrderID:       rec.GetString("order"),
		ReservedUntil: rec.GetDateTime("reserved_until").Time(),
	}
}
