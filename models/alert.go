package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// PaymentAlert is one pushed bank-transfer notification, stored for operator
// review. Alerts never change order state on their own.
type PaymentAlert struct {
	ID             string          `json:"id"`
	RefID          string          `json:"ref_id"`
	Payer          string          `json:"payer,omitempty"`
	AccountNumber  string          `json:"account_number,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ReceivedAt     time.Time       `json:"received_at,omitzero"`
	MatchedOrderID string          `json:"matched_order_id,omitempty"`
}

func PaymentAlertFromRecord(rec *core.Record) *PaymentAlert {
	amount, _ := decimal.NewFromString(rec.GetString("amount"))
	return &PaymentAlert{
		ID:             rec.Id,
		RefID:          rec.GetString("ref_id"),
		Payer:          rec.GetString("payer"),
		AccountNumber:  rec.GetString("account_number"),
		Memo:           rec.GetString("memo"),
		Amount:         amount,
		Currency:       rec.GetString("currency"),
		ReceivedAt:     rec.GetDateTime("received_at").Time(),
		MatchedOrderID: rec.GetString("matched_order"),
	}
}
