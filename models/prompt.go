package models

// Prompt is the structured description of an outbound message. Rendering it
// for a concrete chat provider is the delivery worker's job.
type Prompt struct {
	Text    string         `json:"text"`
	Choices []PromptChoice `json:"choices,omitempty"`
}

type PromptChoice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
