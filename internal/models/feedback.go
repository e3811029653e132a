package models

import "time"

// Feedback is write-once; SessionID is empty when not linked to a session.
type Feedback struct {
	ID          string    `json:"feedback_id"`
	UserID      string    `json:"-"`
	SessionID   string    `json:"session_id,omitempty"`
	Rating      int       `json:"rating"`
	Comments    string    `json:"comments"`
	Suggestions string    `json:"suggestions"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}
