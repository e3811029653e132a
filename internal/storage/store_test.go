package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mentorgo/internal/config"
	"mentorgo/internal/models"
)

func openTestDB(t *testing.T) *SQLStore {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := NewSQLStore(db, "sqlite3")
	t.Cleanup(func() { store.Close() })
	return store
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sql", func(t *testing.T) { fn(t, openTestDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func seedUser(t *testing.T, s Store, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		AuthMethod:   models.AuthMethodEmail,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func seedSession(t *testing.T, s Store, userID string, status models.SessionStatus, started time.Time) *models.Session {
	t.Helper()
	sess := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatMode:  models.ChatModeMentor,
		Status:    status,
		Title:     "t",
		StartedAt: started,
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func TestUserLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := seedUser(t, s, "a@example.com")

		dup := *user
		dup.ID = uuid.NewString()
		if err := s.CreateUser(ctx, &dup); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict for duplicate email, got %v", err)
		}

		got, err := s.GetUserByEmail(ctx, "a@example.com")
		if err != nil {
			t.Fatalf("get by email: %v", err)
		}
		if got.ID != user.ID {
			t.Fatalf("unexpected user %s", got.ID)
		}

		if err := s.UpdateUserEmail(ctx, user.ID, "b@example.com"); err != nil {
			t.Fatalf("update email: %v", err)
		}
		if _, err := s.GetUserByEmail(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("old email should be gone, got %v", err)
		}

		if _, err := s.GetUserByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestMessageRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := seedUser(t, s, "rt@example.com")
		sess := seedSession(t, s, user.ID, models.SessionActive, time.Now().UTC())

		msg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			UserID:    user.ID,
			Sender:    models.SenderUser,
			Text:      "I feel \"quoted\" and ünïcode",
			Sentiment: -0.3333333333333333,
			Timestamp: time.Now().UTC(),
		}
		if err := s.AddMessage(ctx, msg); err != nil {
			t.Fatalf("add message: %v", err)
		}

		msgs, err := s.SessionMessages(ctx, sess.ID)
		if err != nil {
			t.Fatalf("session messages: %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
		got := msgs[0]
		if got.Sender != msg.Sender || got.Text != msg.Text || got.Sentiment != msg.Sentiment {
			t.Fatalf("round trip mismatch: %+v vs %+v", got, msg)
		}
	})
}

func TestRecentMessagesAscending(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := seedUser(t, s, "recent@example.com")
		sess := seedSession(t, s, user.ID, models.SessionActive, time.Now().UTC())

		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			msg := &models.Message{
				ID:        uuid.NewString(),
				SessionID: sess.ID,
				UserID:    user.ID,
				Sender:    models.SenderUser,
				Text:      string(rune('a' + i)),
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			}
			if err := s.AddMessage(ctx, msg); err != nil {
				t.Fatalf("add message: %v", err)
			}
		}
		msgs, err := s.RecentMessages(ctx, user.ID, 3)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(msgs) != 3 || msgs[0].Text != "c" || msgs[2].Text != "e" {
			t.Fatalf("unexpected recent messages: %+v", msgs)
		}
		last, err := s.LastMessageTime(ctx, sess.ID)
		if err != nil {
			t.Fatalf("last message time: %v", err)
		}
		if !last.Equal(base.Add(4 * time.Minute)) {
			t.Fatalf("unexpected last time %v", last)
		}
	})
}

func TestSingleActiveSession(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := seedUser(t, s, "active@example.com")
		first := seedSession(t, s, user.ID, models.SessionActive, time.Now().UTC())

		second := &models.Session{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			ChatMode:  models.ChatModeMentor,
			Status:    models.SessionActive,
			StartedAt: time.Now().UTC(),
		}
		if err := s.CreateSession(ctx, second); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict for second active session, got %v", err)
		}

		ended := time.Now().UTC()
		changed, err := s.CompleteSession(ctx, user.ID, first.ID, ended)
		if err != nil || !changed {
			t.Fatalf("complete session: changed=%v err=%v", changed, err)
		}
		changed, err = s.CompleteSession(ctx, user.ID, first.ID, ended.Add(time.Hour))
		if err != nil || changed {
			t.Fatalf("second completion must be a no-op: changed=%v err=%v", changed, err)
		}
		got, err := s.GetSession(ctx, user.ID, first.ID)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
			t.Fatalf("ended_at changed: %v", got.EndedAt)
		}
		if _, err := s.ActiveSession(ctx, user.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected no active session, got %v", err)
		}
		latest, err := s.LatestCompletedSession(ctx, user.ID)
		if err != nil || latest.ID != first.ID {
			t.Fatalf("latest completed: %v %v", latest, err)
		}
	})
}

func TestSummaryUniquePerSession(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := seedUser(t, s, "sum@example.com")
		sess := seedSession(t, s, user.ID, models.SessionCompleted, time.Now().UTC())

		sum := &models.Summary{
			SessionID: sess.ID,
			UserID:    user.ID,
			Title:     "Title",
			Summary:   "No user messages.",
			Mood:      models.MoodNeutral,
			Tags:      []string{"identity", "growth"},
			Date:      "2024-01-02",
			Source:    models.SummaryFromHeuristic,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateSummary(ctx, sum); err != nil {
			t.Fatalf("create summary: %v", err)
		}
		if err := s.CreateSummary(ctx, sum); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict for duplicate summary, got %v", err)
		}
		list, err := s.ListSummaries(ctx, user.ID, 5)
		if err != nil {
			t.Fatalf("list summaries: %v", err)
		}
		if len(list) != 1 || len(list[0].Tags) != 2 || list[0].Tags[0] != "identity" {
			t.Fatalf("unexpected summaries: %+v", list)
		}
	})
}

func TestDeleteUserCascades(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := seedUser(t, s, "gone@example.com")
		sess := seedSession(t, s, user.ID, models.SessionActive, time.Now().UTC())
		if err := s.AddMessage(ctx, &models.Message{
			ID: uuid.NewString(), SessionID: sess.ID, UserID: user.ID,
			Sender: models.SenderUser, Text: "hi", Timestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("add message: %v", err)
		}
		if err := s.SaveToken(ctx, "tok", user.ID, time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("save token: %v", err)
		}

		if err := s.DeleteUser(ctx, user.ID); err != nil {
			t.Fatalf("delete user: %v", err)
		}
		if _, err := s.GetSession(ctx, user.ID, sess.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session should be gone, got %v", err)
		}
		msgs, err := s.SessionMessages(ctx, sess.ID)
		if err != nil || len(msgs) != 0 {
			t.Fatalf("messages should be gone: %v %v", msgs, err)
		}
		if _, _, err := s.LookupToken(ctx, "tok"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("token should be gone, got %v", err)
		}
	})
}

func TestTokenLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := seedUser(t, s, "tok@example.com")
		if err := s.SaveToken(ctx, "abc", user.ID, time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("save token: %v", err)
		}
		owner, _, err := s.LookupToken(ctx, "abc")
		if err != nil || owner != user.ID {
			t.Fatalf("lookup token: %q %v", owner, err)
		}
		if err := s.DeleteUserTokens(ctx, user.ID); err != nil {
			t.Fatalf("delete user tokens: %v", err)
		}
		if _, _, err := s.LookupToken(ctx, "abc"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found after revoke, got %v", err)
		}
	})
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	user := seedUser(t, s, "busy@example.com")
	if err := s.UpsertProfile(ctx, &models.Profile{UserID: user.ID, ScreenName: "Busy"}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("tok-%d", i)
			for j := 0; j < 50; j++ {
				_, _ = s.GetProfile(ctx, user.ID)
				_ = s.UpsertPreferences(ctx, models.DefaultPreferences(user.ID))
				_, _ = s.GetPreferences(ctx, user.ID)
				_ = s.CreateFeedback(ctx, &models.Feedback{ID: uuid.NewString(), UserID: user.ID, Rating: 4})
				_, _ = s.GetSummary(ctx, "missing")
				_ = s.SaveToken(ctx, fmt.Sprintf("%s-%d", token, j), user.ID, time.Now().Add(time.Hour))
				_, _, _ = s.LookupToken(ctx, token+"-0")
				_ = s.DeleteToken(ctx, token+"-0")
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.DeleteUser(ctx, user.ID); err != nil {
			t.Errorf("delete user: %v", err)
		}
	}()
	wg.Wait()

	if _, err := s.GetUserByID(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("user should be gone, got %v", err)
	}
	if _, err := s.GetProfile(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("profile should be gone, got %v", err)
	}
}

// openMySQLTestDB connects to TEST_MYSQL_ADDR, skipping when it is unset.
func openMySQLTestDB(t *testing.T) *SQLStore {
	t.Helper()
	addr := os.Getenv("TEST_MYSQL_ADDR")
	if addr == "" {
		t.Skip("set TEST_MYSQL_ADDR to run mysql-backed storage tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{"mysql": {
			Username: os.Getenv("TEST_MYSQL_USER"),
			Password: os.Getenv("TEST_MYSQL_PASSWORD"),
			Host:     host,
			Port:     port,
			DBName:   os.Getenv("TEST_MYSQL_DB"),
		}},
	}
	db, err := Open("mysql", cfg)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	if err := Migrate(db, "mysql"); err != nil {
		t.Fatalf("migrate mysql: %v", err)
	}
	store := NewSQLStore(db, "mysql")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMySQLSingleActiveSession(t *testing.T) {
	s := openMySQLTestDB(t)
	ctx := context.Background()
	user := seedUser(t, s, fmt.Sprintf("active_%d@example.com", time.Now().UnixNano()))
	t.Cleanup(func() { _ = s.DeleteUser(context.Background(), user.ID) })

	now := time.Now().UTC()
	first := seedSession(t, s, user.ID, models.SessionActive, now)
	second := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ChatMode:  models.ChatModeMentor,
		Status:    models.SessionActive,
		StartedAt: now,
	}
	if err := s.CreateSession(ctx, second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for second active session, got %v", err)
	}
	if _, err := s.CompleteSession(ctx, user.ID, first.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("complete session: %v", err)
	}
	if err := s.CreateSession(ctx, second); err != nil {
		t.Fatalf("a new active session is allowed once the first completes: %v", err)
	}
	seedSession(t, s, user.ID, models.SessionCompleted, now)
}
