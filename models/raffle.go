package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const (
	RaffleDraft  = "draft"
	RaffleActive = "active"
	RaffleClosed = "closed"
	RaffleDrawn  = "drawn"
)

type Raffle struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`
	Currency     string          `json:"currency"`
	MinNumber    int             `json:"min_number"`
	MaxNumber    int             `json:"max_number"`
	Status       string          `json:"status"` // draft, active, closed, drawn
	DrawDate     time.Time       `json:"draw_date,omitzero"`
	WinnerNumber int             `json:"winner_number,omitempty"`
	DrawnAt      time.Time       `json:"drawn_at,omitzero"`
}

func (r *Raffle) IsActive() bool { return r.Status == RaffleActive }

// PoolSize is the full addressable ticket count for the raffle's range.
func (r *Raffle) PoolSize() int { return r.MaxNumber - r.MinNumber + 1 }

func (r *Raffle) InRange(n int) bool { return n >= r.MinNumber && n <= r.MaxNumber }

func RaffleFromRecord(rec *core.Record) *Raffle {
	price, _ := decimal.NewFromString(rec.GetString("ticket_price"))
	return &Raffle{
		ID:           rec.Id,
		Name:         rec.GetString("name"),
		Description:  rec.GetString("description"),
		TicketPrice:  price,
		Currency:     rec.GetString("currency"),
		MinNumber:    rec.GetInt("min_number"),
		MaxNumber:    rec.GetInt("max_number"),
		Status:       rec.GetString("status"),
		DrawDate:     rec.GetDateTime("draw_date").Time(),
		WinnerNumber: rec.GetInt("winner_number"),
		DrawnAt:      rec.GetDateTime("drawn_at").Time(),
	}
}
