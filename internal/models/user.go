package models

import "time"

type AuthMethod string

const (
	AuthMethodEmail AuthMethod = "email"
	AuthMethodOAuth AuthMethod = "oauth"
)

// User is the root entity; everything else is owned by it.
type User struct {
	ID           string     `json:"user_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	AuthMethod   AuthMethod `json:"auth_method"`
	IsVerified   bool       `json:"is_verified"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
}

// Profile holds the free-text identity information used to personalize replies.
type Profile struct {
	UserID        string    `json:"-"`
	ScreenName    string    `json:"screen_name"`
	Pronouns      string    `json:"pronouns"`
	IdentityGoals string    `json:"identity_goals"`
	FocusArea     string    `json:"focus_area"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ResponseLength string

const (
	ResponseShort    ResponseLength = "short"
	ResponseMedium   ResponseLength = "medium"
	ResponseDetailed ResponseLength = "detailed"
)

const DefaultCommunicationStyle = "empathetic"

// Preferences controls reply length and register.
type Preferences struct {
	UserID             string         `json:"-"`
	ResponseLength     ResponseLength `json:"preferred_response_length"`
	CommunicationStyle string         `json:"preferred_communication_style"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// DefaultPreferences returns the values applied when a preferences row is first created.
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:             userID,
		ResponseLength:     ResponseMedium,
		CommunicationStyle: DefaultCommunicationStyle,
		UpdatedAt:          time.Now().UTC(),
	}
}
