package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message is one entry of the conversation. Messages are never mutated; the
// pending placeholder is swapped for a new value that keeps its ID.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
