// Package chat defines the conversational message value objects.
package chat

import "time"

// Message is one stored chat message. TaskID optionally associates the
// message with a simulation task so a conversation can reference a run.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}
