package assistant

import "context"

// Chat roles as sent to the model.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient abstracts the language model. The production implementation is
// Gemini; tests substitute a canned client.
type LLMClient interface {
	// Complete answers the last message given the system instruction and the
	// preceding history.
	Complete(ctx context.Context, system string, history []Message, message string) (string, error)
}
