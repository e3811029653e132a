package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mentorgo/internal/logger"
	"mentorgo/internal/models"
	"mentorgo/internal/storage"
	"mentorgo/internal/validation"
)

const maxDerivedTitle = 60

// GetOrCreateActiveSession returns the user's active session, creating one
// when none exists. The title is the explicit title when given, else the
// first message cut to 60 runes; an active session without a title gets
// one the same way.
func (s *Service) GetOrCreateActiveSession(ctx context.Context, userID, title, firstMessage string) (*models.Session, error) {
	return s.activeSession(ctx, userID, title, firstMessage, models.ChatModeMentor)
}

// StartSession opens a session in the given chat mode, mentor when empty.
// An already active session is returned as is, whatever its mode.
func (s *Service) StartSession(ctx context.Context, userID, title string, mode models.ChatMode) (*models.Session, error) {
	if mode == "" {
		mode = models.ChatModeMentor
	}
	if err := validation.Validate.Var(string(mode), "chat_mode"); err != nil {
		return nil, fmt.Errorf("%w: invalid chat mode %q", ErrInvalidInput, mode)
	}
	return s.activeSession(ctx, userID, title, "", mode)
}

func (s *Service) activeSession(ctx context.Context, userID, title, firstMessage string, mode models.ChatMode) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	resolved := resolveTitle(title, firstMessage)
	sess, err := s.store.ActiveSession(ctx, userID)
	switch {
	case err == nil:
		if sess.Title == "" && resolved != "" {
			if err := s.store.UpdateSessionTitle(ctx, userID, sess.ID, resolved); err != nil {
				return nil, err
			}
			sess.Title = resolved
		}
		return sess, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	sess = &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatMode:  mode,
		Status:    models.SessionActive,
		Title:     resolved,
		StartedAt: s.now(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another process won the insert; reuse its session.
			return s.store.ActiveSession(ctx, userID)
		}
		return nil, err
	}
	s.logger.Info("session_started",
		zap.String("user_id", logger.SanitizeID(userID)),
		zap.String("session_id", logger.SanitizeID(sess.ID)),
	)
	return sess, nil
}

func resolveTitle(title, firstMessage string) string {
	if t := validation.SanitizeInput(title, validation.MaxTitleLength); t != "" {
		return t
	}
	return truncate(strings.TrimSpace(firstMessage), maxDerivedTitle)
}

// AppendMessage stores one turn in the session. Timestamps inside a session
// are strictly increasing even when the clock does not move between calls.
func (s *Service) AppendMessage(ctx context.Context, sess *models.Session, sender models.Sender, text string, sentiment float64) (*models.Message, error) {
	if sess == nil || sess.ID == "" {
		return nil, fmt.Errorf("%w: session is required", ErrInvalidInput)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: message text cannot be empty", ErrInvalidInput)
	}
	if sender != models.SenderUser {
		sentiment = 0
	}

	unlock := s.locks.Lock(sess.UserID)
	defer unlock()

	last, err := s.store.LastMessageTime(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	ts := s.now().Truncate(time.Microsecond)
	if !last.IsZero() && !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Sender:    sender,
		Text:      text,
		Sentiment: sentiment,
		Timestamp: ts,
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetSession returns a session owned by the user.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	sess, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, mapNotFound(err, ErrSessionNotFound)
	}
	return sess, nil
}

// ActiveSession returns the user's active session or nil when there is none.
func (s *Service) ActiveSession(ctx context.Context, userID string) (*models.Session, error) {
	sess, err := s.store.ActiveSession(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

// EndSession completes an active session and makes sure it has a summary.
// Ending a completed session keeps its ended_at and only fills in a missing
// summary.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) (*models.Session, *models.Summary, error) {
	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.IsActive() {
		endedAt := s.now()
		changed, err := s.store.CompleteSession(ctx, userID, sessionID, endedAt)
		if err != nil {
			return nil, nil, err
		}
		if changed {
			sess.Status = models.SessionCompleted
			sess.EndedAt = &endedAt
			s.logger.Info("session_ended",
				zap.String("user_id", logger.SanitizeID(userID)),
				zap.String("session_id", logger.SanitizeID(sessionID)),
			)
		} else if sess, err = s.GetSession(ctx, userID, sessionID); err != nil {
			return nil, nil, err
		}
	}

	summary, err := s.BuildSummary(ctx, sess)
	if err != nil {
		return sess, nil, err
	}
	return sess, summary, nil
}

// History returns messages for display. With a session id the history is
// scoped to that session; otherwise the active session is used, and with no
// active session the newest historyLimit messages across all sessions.
func (s *Service) History(ctx context.Context, userID, sessionID string) ([]models.Message, string, error) {
	if sessionID != "" {
		msgs, err := s.SessionMessages(ctx, userID, sessionID)
		return msgs, sessionID, err
	}
	active, err := s.ActiveSession(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if active != nil {
		msgs, err := s.store.SessionMessages(ctx, active.ID)
		return msgs, active.ID, err
	}
	msgs, err := s.store.RecentMessages(ctx, userID, s.historyLimit)
	return msgs, "", err
}

// SessionMessages returns a session's messages after checking ownership.
func (s *Service) SessionMessages(ctx context.Context, userID, sessionID string) ([]models.Message, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.store.SessionMessages(ctx, sessionID)
}

// RenameSession sets a session title for the specified user.
func (s *Service) RenameSession(ctx context.Context, userID, sessionID, title string) (*models.Session, error) {
	title = validation.SanitizeInput(title, validation.MaxTitleLength)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateSessionTitle(ctx, userID, sessionID, title); err != nil {
		return nil, mapNotFound(err, ErrSessionNotFound)
	}
	sess.Title = title
	return sess, nil
}

// SessionOverview is a session decorated with its summary, when one exists.
type SessionOverview struct {
	models.Session
	Summary string      `json:"summary"`
	Mood    models.Mood `json:"mood,omitempty"`
}

// ListSessions returns all sessions for a user, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]SessionOverview, error) {
	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.store.ListSummaries(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	bySession := make(map[string]models.Summary, len(summaries))
	for _, sum := range summaries {
		bySession[sum.SessionID] = sum
	}

	out := make([]SessionOverview, 0, len(sessions))
	for _, sess := range sessions {
		ov := SessionOverview{Session: sess}
		if sum, ok := bySession[sess.ID]; ok {
			if sum.Title != "" {
				ov.Title = sum.Title
			}
			ov.Summary = sum.Summary
			ov.Mood = sum.Mood
		}
		if ov.Title == "" {
			ov.Title = fallbackTitle(sess.ID)
		}
		out = append(out, ov)
	}
	return out, nil
}

func fallbackTitle(sessionID string) string {
	return "Session " + truncate(sessionID, 8)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
