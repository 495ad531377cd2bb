package models

import "time"

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message represents one turn in a run's conversation. A run's
// conversation is the ordered sequence of its messages by insertion.
type Message struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Validate checks if the message is valid.
func (m *Message) Validate() error {
	validation := &ValidationErrors{}
	if m.RunID == "" {
		validation.Add("run_id", ErrInvalidMessageRun)
	}
	if m.Content == "" {
		validation.AddMessage("content", "message content is required")
	}
	if validation.Err() != nil {
		return validation.Err()
	}

	switch m.Role {
	case MessageRoleUser, MessageRoleAssistant:
		return nil
	default:
		return ErrInvalidMessageRole
	}
}
