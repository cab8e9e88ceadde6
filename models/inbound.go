package models

import "encoding/json"

const (
	KindText            = "text"
	KindNumberSelection = "number_selection"
	KindImage           = "image"
	KindOther           = "other"
)

// InboundMessage is one decoded chat event handed to the dispatcher. The
// provider message id is globally unique per provider and drives deduplication.
type InboundMessage struct {
	ProviderMessageID string          `json:"provider_message_id"`
	From              string          `json:"from"`
	DisplayName       string          `json:"display_name,omitempty"`
	Kind              string          `json:"kind"` // text, number_selection, image, other
	Text              string          `json:"text,omitempty"`
	MediaID           string          `json:"media_id,omitempty"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// DispatchOutcome is what a dispatch produced. Replays of the same provider
// message id get the identical outcome back with Duplicate set.
type DispatchOutcome struct {
	CorrelationID string  `json:"correlation_id"`
	ContactID     string  `json:"contact_id"`
	State         string  `json:"state"`
	Reply         *Prompt `json:"reply,omitempty"`
	Duplicate     bool    `json:"duplicate,omitempty"`
}
