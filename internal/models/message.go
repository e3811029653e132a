package models

import "time"

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single turn inside a chat session. Sentiment is only
// meaningful for user-authored messages; bot messages store 0.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"-"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"message_text"`
	Sentiment float64   `json:"sentiment_score"`
	Timestamp time.Time `json:"timestamp"`
}
