package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentorgo/internal/config"
	"mentorgo/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness rule
	// (duplicate email, second active session, second summary).
	ErrConflict = errors.New("conflict")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserEmail(ctx context.Context, id, email string) error
	UpdateUserPassword(ctx context.Context, id, hash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// DeleteUser removes the user and everything it owns. Feedback rows keep
	// no session link afterwards.
	DeleteUser(ctx context.Context, id string) error
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	GetPreferences(ctx context.Context, userID string) (*models.Preferences, error)
	UpsertPreferences(ctx context.Context, prefs *models.Preferences) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	ActiveSession(ctx context.Context, userID string) (*models.Session, error)
	// ListSessions returns the user's sessions newest first.
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	UpdateSessionTitle(ctx context.Context, userID, sessionID, title string) error
	// CompleteSession moves an active session to completed and stamps
	// endedAt. It reports false when the session was not active.
	CompleteSession(ctx context.Context, userID, sessionID string, endedAt time.Time) (bool, error)
	LatestCompletedSession(ctx context.Context, userID string) (*models.Session, error)
}

type MessageStore interface {
	AddMessage(ctx context.Context, msg *models.Message) error
	// SessionMessages returns a session's messages in timestamp order.
	SessionMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	// RecentMessages returns the newest limit messages across all of the
	// user's sessions, in ascending timestamp order.
	RecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)
	// UserMessagesSince returns user-authored messages at or after since, ascending.
	UserMessagesSince(ctx context.Context, userID string, since time.Time) ([]models.Message, error)
	// LastMessageTime reports the newest timestamp in a session, zero when empty.
	LastMessageTime(ctx context.Context, sessionID string) (time.Time, error)
}

type SummaryStore interface {
	CreateSummary(ctx context.Context, summary *models.Summary) error
	GetSummary(ctx context.Context, sessionID string) (*models.Summary, error)
	// ListSummaries returns the user's summaries newest first; limit <= 0 means all.
	ListSummaries(ctx context.Context, userID string, limit int) ([]models.Summary, error)
}

type FeedbackStore interface {
	CreateFeedback(ctx context.Context, fb *models.Feedback) error
}

type TokenStore interface {
	SaveToken(ctx context.Context, token, userID string, expiresAt time.Time) error
	// LookupToken returns the owner of an unexpired token.
	LookupToken(ctx context.Context, token string) (string, time.Time, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteUserTokens(ctx context.Context, userID string) error
}

// Store is the persistence boundary used by every service. Both backends
// satisfy it; the choice is made once in New.
type Store interface {
	UserStore
	ProfileStore
	SessionStore
	MessageStore
	SummaryStore
	FeedbackStore
	TokenStore
	Close() error
}

// New opens the backend selected by cfg.BasicConfig.Store. The sql backend
// is migrated before it is returned.
func New(cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.BasicConfig.Store) {
	case "memory":
		return NewMemoryStore(), nil
	case "sql", "":
		db, err := Open(cfg.BasicConfig.DBType, cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db, cfg.BasicConfig.DBType); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLStore(db, cfg.BasicConfig.DBType), nil
	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.BasicConfig.Store)
	}
}
