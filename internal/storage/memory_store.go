package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"mentorgo/internal/models"
)

// MemoryStore keeps every entity in process-local go-cache instances.
// Entities never expire; tokens expire with their own TTL. Every method holds
// mu, so reads never observe a cascade or uniqueness check halfway through.
type MemoryStore struct {
	mu sync.RWMutex

	users     *cache.Cache
	profiles  *cache.Cache
	prefs     *cache.Cache
	sessions  *cache.Cache
	messages  *cache.Cache
	summaries *cache.Cache
	feedback  *cache.Cache
	tokens    *cache.Cache
}

type tokenRecord struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	newCache := func() *cache.Cache { return cache.New(cache.NoExpiration, 0) }
	return &MemoryStore{
		users:     newCache(),
		profiles:  newCache(),
		prefs:     newCache(),
		sessions:  newCache(),
		messages:  newCache(),
		summaries: newCache(),
		feedback:  newCache(),
		tokens:    cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range []*cache.Cache{m.users, m.profiles, m.prefs, m.sessions, m.messages, m.summaries, m.feedback, m.tokens} {
		c.Flush()
	}
	return nil
}

func emailKey(email string) string { return "email:" + strings.ToLower(email) }

// ---- users ----

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users.Get(emailKey(user.Email)); exists {
		return fmt.Errorf("create user: %w", ErrConflict)
	}
	if _, exists := m.users.Get(user.ID); exists {
		return fmt.Errorf("create user: %w", ErrConflict)
	}
	u := *user
	m.users.Set(user.ID, &u, cache.NoExpiration)
	m.users.Set(emailKey(user.Email), user.ID, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) userLocked(id string) (*models.User, bool) {
	v, ok := m.users.Get(id)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.userLocked(id)
	if !ok {
		return nil, fmt.Errorf("get user: %w", ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	v, ok := m.users.Get(emailKey(email))
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get user by email: %w", ErrNotFound)
	}
	return m.GetUserByID(ctx, v.(string))
}

func (m *MemoryStore) UpdateUserEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.userLocked(id)
	if !ok {
		return fmt.Errorf("update email: %w", ErrNotFound)
	}
	if owner, exists := m.users.Get(emailKey(email)); exists && owner.(string) != id {
		return fmt.Errorf("update email: %w", ErrConflict)
	}
	m.users.Delete(emailKey(u.Email))
	updated := *u
	updated.Email = email
	m.users.Set(id, &updated, cache.NoExpiration)
	m.users.Set(emailKey(email), id, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.userLocked(id)
	if !ok {
		return fmt.Errorf("update password: %w", ErrNotFound)
	}
	updated := *u
	updated.PasswordHash = hash
	m.users.Set(id, &updated, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.userLocked(id)
	if !ok {
		return nil
	}
	updated := *u
	updated.LastLogin = &at
	m.users.Set(id, &updated, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.userLocked(id)
	if !ok {
		return fmt.Errorf("delete user: %w", ErrNotFound)
	}
	m.users.Delete(id)
	m.users.Delete(emailKey(u.Email))
	m.profiles.Delete(id)
	m.prefs.Delete(id)

	for key, item := range m.sessions.Items() {
		if sess := item.Object.(*models.Session); sess.UserID == id {
			m.sessions.Delete(key)
		}
	}
	for key, item := range m.messages.Items() {
		if msg := item.Object.(*models.Message); msg.UserID == id {
			m.messages.Delete(key)
		}
	}
	for key, item := range m.summaries.Items() {
		if sum := item.Object.(*models.Summary); sum.UserID == id {
			m.summaries.Delete(key)
		}
	}
	for key, item := range m.feedback.Items() {
		if fb := item.Object.(*models.Feedback); fb.UserID == id {
			m.feedback.Delete(key)
		}
	}
	m.deleteUserTokensLocked(id)
	return nil
}

// ---- profile & preferences ----

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.profiles.Get(userID)
	if !ok {
		return nil, fmt.Errorf("get profile: %w", ErrNotFound)
	}
	cp := *v.(*models.Profile)
	return &cp, nil
}

func (m *MemoryStore) UpsertProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if v, ok := m.profiles.Get(p.UserID); ok {
		cp.CreatedAt = v.(*models.Profile).CreatedAt
	}
	m.profiles.Set(p.UserID, &cp, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) GetPreferences(_ context.Context, userID string) (*models.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs.Get(userID)
	if !ok {
		return nil, fmt.Errorf("get preferences: %w", ErrNotFound)
	}
	cp := *v.(*models.Preferences)
	return &cp, nil
}

func (m *MemoryStore) UpsertPreferences(_ context.Context, p *models.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.prefs.Set(p.UserID, &cp, cache.NoExpiration)
	return nil
}

// ---- sessions ----

func (m *MemoryStore) sessionLocked(userID, sessionID string) (*models.Session, bool) {
	v, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	sess := v.(*models.Session)
	if sess.UserID != userID {
		return nil, false
	}
	return sess, true
}

func (m *MemoryStore) userSessionsLocked(userID string) []models.Session {
	var out []models.Session
	for _, item := range m.sessions.Items() {
		if sess := item.Object.(*models.Session); sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (m *MemoryStore) CreateSession(_ context.Context, sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.Status == models.SessionActive {
		for _, existing := range m.userSessionsLocked(sess.UserID) {
			if existing.Status == models.SessionActive {
				return fmt.Errorf("create session: %w", ErrConflict)
			}
		}
	}
	cp := *sess
	m.sessions.Set(sess.ID, &cp, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, userID, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessionLocked(userID, sessionID)
	if !ok {
		return nil, fmt.Errorf("get session: %w", ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (m *MemoryStore) ActiveSession(_ context.Context, userID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sess := range m.userSessionsLocked(userID) {
		if sess.Status == models.SessionActive {
			cp := sess
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("active session: %w", ErrNotFound)
}

func (m *MemoryStore) ListSessions(_ context.Context, userID string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userSessionsLocked(userID), nil
}

func (m *MemoryStore) UpdateSessionTitle(_ context.Context, userID, sessionID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessionLocked(userID, sessionID)
	if !ok {
		return fmt.Errorf("update session title: %w", ErrNotFound)
	}
	updated := *sess
	updated.Title = title
	m.sessions.Set(sessionID, &updated, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) CompleteSession(_ context.Context, userID, sessionID string, endedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessionLocked(userID, sessionID)
	if !ok || sess.Status != models.SessionActive {
		return false, nil
	}
	updated := *sess
	updated.Status = models.SessionCompleted
	updated.EndedAt = &endedAt
	m.sessions.Set(sessionID, &updated, cache.NoExpiration)
	return true, nil
}

func (m *MemoryStore) LatestCompletedSession(_ context.Context, userID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.Session
	for _, sess := range m.userSessionsLocked(userID) {
		if sess.Status != models.SessionCompleted || sess.EndedAt == nil {
			continue
		}
		if latest == nil || sess.EndedAt.After(*latest.EndedAt) {
			cp := sess
			latest = &cp
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest completed session: %w", ErrNotFound)
	}
	return latest, nil
}

// ---- messages ----

func (m *MemoryStore) filterMessages(keep func(*models.Message) bool) []models.Message {
	var out []models.Message
	for _, item := range m.messages.Items() {
		if msg := item.Object.(*models.Message); keep(msg) {
			out = append(out, *msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *MemoryStore) AddMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sessions.Get(msg.SessionID)
	if !ok || v.(*models.Session).UserID != msg.UserID {
		return fmt.Errorf("add message: %w", ErrNotFound)
	}
	if _, exists := m.messages.Get(msg.ID); exists {
		return fmt.Errorf("add message: %w", ErrConflict)
	}
	cp := *msg
	m.messages.Set(msg.ID, &cp, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) SessionMessages(_ context.Context, sessionID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterMessages(func(msg *models.Message) bool { return msg.SessionID == sessionID }), nil
}

func (m *MemoryStore) RecentMessages(_ context.Context, userID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.filterMessages(func(msg *models.Message) bool { return msg.UserID == userID })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *MemoryStore) UserMessagesSince(_ context.Context, userID string, since time.Time) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterMessages(func(msg *models.Message) bool {
		return msg.UserID == userID && msg.Sender == models.SenderUser && !msg.Timestamp.Before(since)
	}), nil
}

func (m *MemoryStore) LastMessageTime(_ context.Context, sessionID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last time.Time
	for _, item := range m.messages.Items() {
		if msg := item.Object.(*models.Message); msg.SessionID == sessionID && msg.Timestamp.After(last) {
			last = msg.Timestamp
		}
	}
	return last, nil
}

// ---- summaries ----

func copySummary(s *models.Summary) *models.Summary {
	cp := *s
	cp.Tags = append([]string(nil), s.Tags...)
	cp.ActionItems = append([]string(nil), s.ActionItems...)
	return &cp
}

func (m *MemoryStore) CreateSummary(_ context.Context, sum *models.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.summaries.Get(sum.SessionID); exists {
		return fmt.Errorf("create summary: %w", ErrConflict)
	}
	m.summaries.Set(sum.SessionID, copySummary(sum), cache.NoExpiration)
	return nil
}

func (m *MemoryStore) GetSummary(_ context.Context, sessionID string) (*models.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.summaries.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("get summary: %w", ErrNotFound)
	}
	return copySummary(v.(*models.Summary)), nil
}

func (m *MemoryStore) ListSummaries(_ context.Context, userID string, limit int) ([]models.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Summary
	for _, item := range m.summaries.Items() {
		if sum := item.Object.(*models.Summary); sum.UserID == userID {
			out = append(out, *copySummary(sum))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- feedback ----

func (m *MemoryStore) CreateFeedback(_ context.Context, fb *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.feedback.Get(fb.ID); exists {
		return fmt.Errorf("create feedback: %w", ErrConflict)
	}
	cp := *fb
	m.feedback.Set(fb.ID, &cp, cache.NoExpiration)
	return nil
}

// ---- tokens ----

func (m *MemoryStore) SaveToken(_ context.Context, token, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("persist token: already expired")
	}
	if err := m.tokens.Add(token, tokenRecord{userID: userID, expiresAt: expiresAt}, ttl); err != nil {
		return fmt.Errorf("persist token: %w", ErrConflict)
	}
	return nil
}

func (m *MemoryStore) LookupToken(_ context.Context, token string) (string, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.tokens.Get(token)
	if !ok {
		return "", time.Time{}, fmt.Errorf("lookup token: %w", ErrNotFound)
	}
	rec := v.(tokenRecord)
	return rec.userID, rec.expiresAt, nil
}

func (m *MemoryStore) DeleteToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens.Delete(token)
	return nil
}

func (m *MemoryStore) DeleteUserTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteUserTokensLocked(userID)
	return nil
}

func (m *MemoryStore) deleteUserTokensLocked(userID string) {
	for key, item := range m.tokens.Items() {
		if rec := item.Object.(tokenRecord); rec.userID == userID {
			m.tokens.Delete(key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
