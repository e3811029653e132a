package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

type ChatMode string

const (
	ChatModeMentor     ChatMode = "mentor"
	ChatModeBestFriend ChatMode = "best_friend"
	ChatModeChallenge  ChatMode = "challenge"
)

// Session groups a bounded sequence of user/bot turns.
type Session struct {
	ID        string        `json:"session_id"`
	UserID    string        `json:"user_id"`
	ChatMode  ChatMode      `json:"chat_mode"`
	Status    SessionStatus `json:"status"`
	Title     string        `json:"title"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at"`
}

// IsActive reports whether the session still accepts turns.
func (s *Session) IsActive() bool {
	return s != nil && s.Status == SessionActive
}
