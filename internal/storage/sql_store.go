package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentorgo/internal/models"
)

// SQLStore persists everything through database/sql. Queries use "?"
// placeholders, which both supported drivers accept.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: strings.ToLower(driver)}
}

// DB exposes the underlying handle for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) isMySQL() bool { return s.driver == "mysql" }

func wrapWrite(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func checkAffected(op string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ---- users ----

const userColumns = `id, email, password_hash, auth_method, is_verified, created_at, last_login`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u         models.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.AuthMethod, &u.IsVerified, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.AuthMethod, user.IsVerified, user.CreatedAt, nullTime(user.LastLogin),
	)
	if err != nil {
		return wrapWrite("create user", err)
	}
	return nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("get user", err)
	}
	return u, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, notFound("get user by email", err)
	}
	return u, nil
}

func (s *SQLStore) UpdateUserEmail(ctx context.Context, id, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, id)
	if err != nil {
		return wrapWrite("update email", err)
	}
	return checkAffected("update email", res)
}

func (s *SQLStore) UpdateUserPassword(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return checkAffected("update password", res)
}

func (s *SQLStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return checkAffected("delete user", res)
}

// ---- profile & preferences ----

func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, screen_name, pronouns, identity_goals, focus_area, created_at, updated_at
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.ScreenName, &p.Pronouns, &p.IdentityGoals, &p.FocusArea, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound("get profile", err)
	}
	return &p, nil
}

func (s *SQLStore) UpsertProfile(ctx context.Context, p *models.Profile) error {
	query := `INSERT INTO user_profiles (user_id, screen_name, pronouns, identity_goals, focus_area, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET screen_name = excluded.screen_name, pronouns = excluded.pronouns,
		 identity_goals = excluded.identity_goals, focus_area = excluded.focus_area, updated_at = excluded.updated_at`
	if s.isMySQL() {
		query = `INSERT INTO user_profiles (user_id, screen_name, pronouns, identity_goals, focus_area, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE screen_name = VALUES(screen_name), pronouns = VALUES(pronouns),
		 identity_goals = VALUES(identity_goals), focus_area = VALUES(focus_area), updated_at = VALUES(updated_at)`
	}
	if _, err := s.db.ExecContext(ctx, query,
		p.UserID, p.ScreenName, p.Pronouns, p.IdentityGoals, p.FocusArea, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	var p models.Preferences
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, response_length, communication_style, updated_at FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.ResponseLength, &p.CommunicationStyle, &p.UpdatedAt)
	if err != nil {
		return nil, notFound("get preferences", err)
	}
	return &p, nil
}

func (s *SQLStore) UpsertPreferences(ctx context.Context, p *models.Preferences) error {
	query := `INSERT INTO user_preferences (user_id, response_length, communication_style, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET response_length = excluded.response_length,
		 communication_style = excluded.communication_style, updated_at = excluded.updated_at`
	if s.isMySQL() {
		query = `INSERT INTO user_preferences (user_id, response_length, communication_style, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE response_length = VALUES(response_length),
		 communication_style = VALUES(communication_style), updated_at = VALUES(updated_at)`
	}
	if _, err := s.db.ExecContext(ctx, query, p.UserID, p.ResponseLength, p.CommunicationStyle, p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// ---- sessions ----

const sessionColumns = `id, user_id, chat_mode, status, title, started_at, ended_at`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var (
		sess  models.Session
		ended sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.ChatMode, &sess.Status, &sess.Title, &sess.StartedAt, &ended); err != nil {
		return nil, err
	}
	sess.StartedAt = sess.StartedAt.UTC()
	sess.EndedAt = timePtr(ended)
	return &sess, nil
}

func (s *SQLStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.ChatMode, sess.Status, sess.Title, sess.StartedAt, nullTime(sess.EndedAt),
	)
	if err != nil {
		return wrapWrite("create session", err)
	}
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ? AND user_id = ?`, sessionID, userID,
	))
	if err != nil {
		return nil, notFound("get session", err)
	}
	return sess, nil
}

func (s *SQLStore) ActiveSession(ctx context.Context, userID string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id = ? AND status = ?
		 ORDER BY started_at DESC LIMIT 1`, userID, models.SessionActive,
	))
	if err != nil {
		return nil, notFound("active session", err)
	}
	return sess, nil
}

func (s *SQLStore) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id = ? ORDER BY started_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *SQLStore) UpdateSessionTitle(ctx context.Context, userID, sessionID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ? WHERE id = ? AND user_id = ?`, title, sessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	return checkAffected("update session title", res)
}

func (s *SQLStore) CompleteSession(ctx context.Context, userID, sessionID string, endedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET status = ?, ended_at = ? WHERE id = ? AND user_id = ? AND status = ?`,
		models.SessionCompleted, endedAt, sessionID, userID, models.SessionActive,
	)
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete session rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLStore) LatestCompletedSession(ctx context.Context, userID string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id = ? AND status = ?
		 ORDER BY ended_at DESC LIMIT 1`, userID, models.SessionCompleted,
	))
	if err != nil {
		return nil, notFound("latest completed session", err)
	}
	return sess, nil
}

// ---- messages ----

const messageColumns = `id, session_id, user_id, sender, message_text, sentiment_score, created_at`

func (s *SQLStore) queryMessages(ctx context.Context, op, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Sender, &m.Text, &m.Sentiment, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStore) AddMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.UserID, msg.Sender, msg.Text, msg.Sentiment, msg.Timestamp,
	)
	if err != nil {
		return wrapWrite("add message", err)
	}
	return nil
}

func (s *SQLStore) SessionMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	return s.queryMessages(ctx, "list session messages",
		`SELECT `+messageColumns+` FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID,
	)
}

func (s *SQLStore) RecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	messages, err := s.queryMessages(ctx, "list recent messages",
		`SELECT `+messageColumns+` FROM chat_messages WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *SQLStore) UserMessagesSince(ctx context.Context, userID string, since time.Time) ([]models.Message, error) {
	return s.queryMessages(ctx, "list user messages",
		`SELECT `+messageColumns+` FROM chat_messages WHERE user_id = ? AND sender = ? AND created_at >= ?
		 ORDER BY created_at ASC`, userID, models.SenderUser, since,
	)
}

func (s *SQLStore) LastMessageTime(ctx context.Context, sessionID string) (time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM chat_messages WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID,
	).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("last message time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time.UTC(), nil
}

// ---- summaries ----

const summaryColumns = `session_id, user_id, title, summary, mood, tags, summary_date, key_insights,
	action_items, quality_score, emotional_journey, source, created_at`

func scanSummary(row interface{ Scan(...any) error }) (*models.Summary, error) {
	var (
		sum              models.Summary
		tags, actionItem string
	)
	if err := row.Scan(&sum.SessionID, &sum.UserID, &sum.Title, &sum.Summary, &sum.Mood, &tags, &sum.Date,
		&sum.KeyInsights, &actionItem, &sum.QualityScore, &sum.EmotionalJourney, &sum.Source, &sum.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &sum.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(actionItem), &sum.ActionItems); err != nil {
		return nil, fmt.Errorf("decode action items: %w", err)
	}
	sum.CreatedAt = sum.CreatedAt.UTC()
	return &sum, nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func (s *SQLStore) CreateSummary(ctx context.Context, sum *models.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_summaries (`+summaryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID, sum.UserID, sum.Title, sum.Summary, sum.Mood, encodeList(sum.Tags), sum.Date,
		sum.KeyInsights, encodeList(sum.ActionItems), sum.QualityScore, sum.EmotionalJourney, sum.Source, sum.CreatedAt,
	)
	if err != nil {
		return wrapWrite("create summary", err)
	}
	return nil
}

func (s *SQLStore) GetSummary(ctx context.Context, sessionID string) (*models.Summary, error) {
	sum, err := scanSummary(s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM chat_summaries WHERE session_id = ?`, sessionID,
	))
	if err != nil {
		return nil, notFound("get summary", err)
	}
	return sum, nil
}

func (s *SQLStore) ListSummaries(ctx context.Context, userID string, limit int) ([]models.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM chat_summaries WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, *sum)
	}
	return summaries, rows.Err()
}

// ---- feedback ----

func (s *SQLStore) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, user_id, session_id, rating, comments, suggestions, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.UserID, nullString(fb.SessionID), fb.Rating, fb.Comments, fb.Suggestions, fb.Category, fb.CreatedAt,
	)
	if err != nil {
		return wrapWrite("create feedback", err)
	}
	return nil
}

// ---- tokens ----

func (s *SQLStore) SaveToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, time.Now().UTC(), expiresAt,
	)
	if err != nil {
		return wrapWrite("persist token", err)
	}
	return nil
}

func (s *SQLStore) LookupToken(ctx context.Context, token string) (string, time.Time, error) {
	var (
		userID    string
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		return "", time.Time{}, notFound("lookup token", err)
	}
	if time.Now().After(expiresAt) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token)
		return "", time.Time{}, fmt.Errorf("lookup token: %w", ErrNotFound)
	}
	return userID, expiresAt.UTC(), nil
}

func (s *SQLStore) DeleteToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteUserTokens(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
