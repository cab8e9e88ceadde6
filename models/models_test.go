package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaffle_PoolSizeAndRange(t *testing.T) {
	raffle := Raffle{
		ID:        "raffle-1",
		Name:      "New Year Raffle",
		MinNumber: 1,
		MaxNumber: 100,
		Status:    RaffleActive,
	}

	assert.Equal(t, 100, raffle.PoolSize())
	assert.True(t, raffle.IsActive())

	assert.True(t, raffle.InRange(1))
	assert.True(t, raffle.InRange(100))
	assert.False(t, raffle.InRange(0))
	assert.False(t, raffle.InRange(101))

	// Ranges do not have to start at 1
	raffle.MinNumber = 500
	raffle.MaxNumber = 999
	assert.Equal(t, 500, raffle.PoolSize())
	assert.True(t, raffle.InRange(500))
	assert.False(t, raffle.InRange(499))
}

func TestRaffle_IsActive(t *testing.T) {
	for _, status := range []string{RaffleDraft, RaffleClosed, RaffleDrawn} {
		raffle := Raffle{Status: status}
		assert.False(t, raffle.IsActive(), "status %s must not be active", status)
	}
	assert.True(t, (&Raffle{Status: RaffleActive}).IsActive())
}

func TestOrder_Open(t *testing.T) {
	tests := []struct {
		status string
		open   bool
	}{
		{OrderDraft, true},
		{OrderPendingPayment, true},
		{OrderPaid, false},
		{OrderCancelled, false},
		{OrderExpired, false},
	}

	for _, tt := range tests {
		order := Order{Status: tt.status}
		assert.Equal(t, tt.open, order.Open(), "status %s", tt.status)
	}
}

func TestOrder_MoneyTotals(t *testing.T) {
	unit, err := decimal.NewFromString("50000")
	require.NoError(t, err)

	order := Order{
		Quantity:    3,
		UnitPrice:   unit,
		TotalAmount: unit.Mul(decimal.NewFromInt(3)),
	}

	assert.Equal(t, "150000", order.TotalAmount.String())
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("150000")))

	// Fractional prices keep exact decimal arithmetic
	unit = decimal.RequireFromString("2.5")
	total := unit.Mul(decimal.NewFromInt(3))
	assert.Equal(t, "7.5", total.String())
}

func TestConversationContext_IsZero(t *testing.T) {
	assert.True(t, ConversationContext{}.IsZero())

	assert.False(t, ConversationContext{RaffleID: "r1"}.IsZero())
	assert.False(t, ConversationContext{Mode: ModePick}.IsZero())
	assert.False(t, ConversationContext{Qty: 2}.IsZero())
	assert.False(t, ConversationContext{DraftOrderID: "o1"}.IsZero())
	assert.False(t, ConversationContext{PickedNumbers: []int{7}}.IsZero())
}

func TestConversationContext_JSONRoundTrip(t *testing.T) {
	cctx := ConversationContext{
		RaffleID:      "raffle-1",
		Mode:          ModePick,
		Qty:           3,
		DraftOrderID:  "order-1",
		PickedNumbers: []int{7, 13, 21},
	}

	data, err := json.Marshal(cctx)
	require.NoError(t, err)

	var restored ConversationContext
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, cctx, restored)

	// Empty contexts serialize to an empty object, nothing leaks through
	data, err = json.Marshal(ConversationContext{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestDispatchOutcome_ReplayShape(t *testing.T) {
	outcome := DispatchOutcome{
		CorrelationID: "corr-1",
		ContactID:     "contact-1",
		State:         StateConfirmReservation,
		Reply: &Prompt{
			Text: "You got numbers 7, 13.",
			Choices: []PromptChoice{
				{ID: "confirm", Title: "Confirm"},
				{ID: "cancel", Title: "Cancel"},
			},
		},
	}

	data, err := json.Marshal(outcome)
	require.NoError(t, err)

	// A replayed outcome is the stored one plus the duplicate flag
	var replay DispatchOutcome
	require.NoError(t, json.Unmarshal(data, &replay))
	replay.Duplicate = true

	assert.Equal(t, outcome.CorrelationID, replay.CorrelationID)
	assert.Equal(t, outcome.State, replay.State)
	require.NotNil(t, replay.Reply)
	assert.Equal(t, outcome.Reply.Text, replay.Reply.Text)
	assert.Len(t, replay.Reply.Choices, 2)
	assert.True(t, replay.Duplicate)
}
