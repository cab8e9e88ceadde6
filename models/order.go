package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const (
	OrderDraft          = "DRAFT"
	OrderPendingPayment = "PENDING_PAYMENT"
	OrderPaid           = "PAID"
	OrderCancelled      = "CANCELLED"
	OrderExpired        = "EXPIRED"
)

type Order struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	RaffleID       string          `json:"raffle_id"`
	ContactID      string          `json:"contact_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Status         string          `json:"status"` // DRAFT, PENDING_PAYMENT, PAID, CANCELLED, EXPIRED
	ProofReference string          `json:"proof_reference,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at,omitzero"`
	PaidAt         time.Time       `json:"paid_at,omitzero"`
	CancelReason   string          `json:"cancel_reason,omitempty"`

	// Numbers holds the reserved ticket numbers when the order was loaded with
	// its tickets, sorted ascending.
	Numbers []int `json:"numbers,omitempty"`
}

// Open reports whether the order still holds reservations that can be acted on.
func (o *Order) Open() bool {
	return o.Status == OrderDraft || o.Status == OrderPendingPayment
}

func OrderFromRecord(rec *core.Record) *Order {
	unit, _ := decimal.NewFromString(rec.GetString("unit_price"))
	total, _ := decimal.NewFromString(rec.GetString("total_amount"))
	return &Order{
		ID:             rec.Id,
		Code:           rec.GetString("code"),
		RaffleID:       rec.GetString("raffle"),
		ContactID:      rec.GetString("contact"),
		Quantity:       rec.GetInt("quantity"),
		UnitPrice:      unit,
		TotalAmount:    total,
		Status:         rec.GetString("status"),
		ProofReference: rec.GetString("proof_reference"),
		ExpiresAt:      rec.GetDateTime("expires_at").Time(),
		PaidAt:         rec.GetDateTime("paid_at").Time(),
		CancelReason:   rec.GetString("cancel_reason"),
	}
}
