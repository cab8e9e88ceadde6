package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
)

// Conversation states. A contact is always in exactly one of these.
const (
	StateMenu               = "MENU"
	StateChooseMode         = "CHOOSE_MODE"
	StateAskQty             = "ASK_QTY"
	StateAskPickNumbers     = "ASK_PICK_NUMBERS"
	StateConfirmReservation = "CONFIRM_RESERVATION"
	StateWaitProof          = "WAIT_PROOF"
	StateDone               = "DONE"
)

const (
	ModePick   = "pick"
	ModeRandom = "random"
)

// ConversationContext is the per-contact scratchpad carried between messages.
// Transitions replace it as a whole; fields never survive a state change unless
// the new context sets them again.
type ConversationContext struct {
	RaffleID      string `json:"raffle_id,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Qty           int    `json:"qty,omitempty"`
	DraftOrderID  string `json:"draft_order_id,omitempty"`
	PickedNumbers []int  `json:"picked_numbers,omitempty"`
}

func (c ConversationContext) IsZero() bool {
	return c.RaffleID == "" && c.Mode == "" && c.Qty == 0 &&
		c.DraftOrderID == "" && len(c.PickedNumbers) == 0
}

type Contact struct {
	ID                string              `json:"id"`
	Phone             string              `json:"phone"`
	DisplayName       string              `json:"display_name,omitempty"`
	State             string              `json:"state"`
	Context           ConversationContext `json:"context"`
	LastInteractionAt time.Time           `json:"last_interaction_at,omitzero"`
}

func ContactFromRecord(rec *core.Record) *Contact {
	c := &Contact{
		ID:                rec.Id,
		Phone:             rec.GetString("phone"),
		DisplayName:       rec.GetString("display_name"),
		State:             rec.GetString("state"),
		LastInteractionAt: rec.GetDateTime("last_interaction_at").Time(),
	}
	if c.State == "" {
		c.State = StateMenu
	}
	// A malformed scratchpad must not wedge the contact, fall back to empty.
	_ = rec.UnmarshalJSONField("context", &c.Context)
	return c
}
