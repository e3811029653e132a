package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"

	"mentorgo/internal/config"
	"mentorgo/internal/models"
	"mentorgo/internal/redis"
	"mentorgo/internal/storage"
)

func openTestDB(t *testing.T) *storage.SQLStore {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	store := storage.NewSQLStore(db, "sqlite3")
	t.Cleanup(func() { store.Close() })
	return store
}

func insertUser(t *testing.T, store storage.Store) string {
	t.Helper()
	id := uuid.NewString()
	err := store.CreateUser(context.Background(), &models.User{
		ID:         id,
		Email:      id + "@example.com",
		AuthMethod: models.AuthMethodEmail,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func eachStore(t *testing.T, fn func(t *testing.T, store storage.Store)) {
	t.Run("sql", func(t *testing.T) { fn(t, openTestDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, storage.NewMemoryStore()) })
}

func TestAuthIssueValidateRevoke(t *testing.T) {
	eachStore(t, func(t *testing.T, store storage.Store) {
		userID := insertUser(t, store)
		svc := NewService(store, nil, time.Hour)
		ctx := context.Background()

		token, err := svc.IssueToken(ctx, userID)
		if err != nil {
			t.Fatalf("IssueToken error: %v", err)
		}
		if len(token) != 64 {
			t.Fatalf("expected 64 hex chars, got %d", len(token))
		}
		got, err := svc.ValidateToken(ctx, token)
		if err != nil || got != userID {
			t.Fatalf("ValidateToken failed: id=%s err=%v", got, err)
		}
		if err := svc.RevokeToken(ctx, token); err != nil {
			t.Fatalf("RevokeToken error: %v", err)
		}
		if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
		}

		token2, err := svc.IssueToken(ctx, userID)
		if err != nil {
			t.Fatalf("IssueToken error: %v", err)
		}
		if err := svc.RevokeUserTokens(ctx, userID); err != nil {
			t.Fatalf("RevokeUserTokens error: %v", err)
		}
		if _, err := svc.ValidateToken(ctx, token2); err == nil {
			t.Fatalf("expected error after revoke all")
		}
		if _, err := svc.ValidateToken(ctx, ""); !errors.Is(err, ErrTokenRequired) {
			t.Fatalf("expected ErrTokenRequired, got %v", err)
		}
	})
}

func TestAuthValidateExpiredToken(t *testing.T) {
	eachStore(t, func(t *testing.T, store storage.Store) {
		userID := insertUser(t, store)
		svc := NewService(store, nil, 10*time.Millisecond)
		token, err := svc.IssueToken(context.Background(), userID)
		if err != nil {
			t.Fatalf("IssueToken error: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
		if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected expiration error, got %v", err)
		}
	})
}

func TestMiddlewareAndCSRF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	userID := insertUser(t, store)
	svc := NewService(store, nil, time.Hour)
	token, err := svc.IssueToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	router := gin.New()
	router.Use(svc.Middleware(), svc.CSRFMiddleware())
	handler := func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		if got, ok := AuthTokenFromContext(c); !ok || got != token {
			t.Errorf("token not captured: %q", got)
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	}
	router.GET("/me", handler)
	router.POST("/me", handler)

	cases := []struct {
		name   string
		method string
		setup  func(r *http.Request)
		want   int
	}{
		{"no token", http.MethodGet, func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad token", http.MethodGet, func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer get", http.MethodGet, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"bearer post skips csrf", http.MethodPost, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie get", http.MethodGet, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
		}, http.StatusOK},
		{"cookie post without csrf", http.MethodPost, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
		}, http.StatusForbidden},
		{"cookie post with mismatched csrf", http.MethodPost, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
			r.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: "a"})
			r.Header.Set(svc.CSRFHeaderName(), "b")
		}, http.StatusForbidden},
		{"cookie post with csrf", http.MethodPost, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
			r.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: "same"})
			r.Header.Set(svc.CSRFHeaderName(), "same")
		}, http.StatusOK},
		{"lowercase scheme", http.MethodPost, func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, http.StatusOK},
		{"other scheme falls back to cookie", http.MethodGet, func(r *http.Request) {
			r.Header.Set("Authorization", "Token "+token)
			r.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
		}, http.StatusOK},
		{"other scheme alone", http.MethodGet, func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) }, http.StatusUnauthorized},
		{"empty bearer does not skip csrf", http.MethodPost, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer ")
			r.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
		}, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/me", nil)
		tc.setup(req)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestSetAuthCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(storage.NewMemoryStore(), nil, time.Hour)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	svc.SetAuthCookies(c, "auth-value", "csrf-value")
	cookies := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		cookies[ck.Name] = ck
	}
	authCookie, ok := cookies[svc.AuthCookieName()]
	if !ok || authCookie.Value != "auth-value" || !authCookie.HttpOnly {
		t.Fatalf("unexpected auth cookie: %+v", authCookie)
	}
	csrfCookie, ok := cookies[svc.CSRFCookieName()]
	if !ok || csrfCookie.Value != "csrf-value" || csrfCookie.HttpOnly {
		t.Fatalf("unexpected csrf cookie: %+v", csrfCookie)
	}
	if authCookie.MaxAge != 3600 {
		t.Fatalf("expected max age 3600, got %d", authCookie.MaxAge)
	}
}

func TestLoginThrottle(t *testing.T) {
	ctx := context.Background()
	throttle := NewLoginThrottle(memorystore.NewStore(), 3, time.Hour)
	for i := 0; i < 3; i++ {
		locked, _, err := throttle.Locked(ctx, "a@example.com", "10.0.0.1")
		if err != nil {
			t.Fatalf("Locked: %v", err)
		}
		if locked {
			t.Fatalf("locked after %d failures", i)
		}
		if err := throttle.Fail(ctx, "A@example.com ", "10.0.0.1"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	}
	locked, retry, err := throttle.Locked(ctx, "a@example.com", "10.0.0.1")
	if err != nil || !locked || retry <= 0 || retry > time.Hour {
		t.Fatalf("expected lockout, got locked=%v retry=%v err=%v", locked, retry, err)
	}
	if locked, _, _ := throttle.Locked(ctx, "a@example.com", "10.0.0.2"); locked {
		t.Fatalf("lockout leaked to another address")
	}
	if err := throttle.Succeed(ctx, "a@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if locked, _, _ := throttle.Locked(ctx, "a@example.com", "10.0.0.1"); locked {
		t.Fatalf("expected reset after success")
	}
}

func TestLoginThrottleSharesRedisStore(t *testing.T) {
	ctx := context.Background()
	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	store, err := cacheClient.LimiterStore("mentorgo_login_test")
	if err != nil {
		t.Fatalf("LimiterStore: %v", err)
	}
	// Two throttles over one store behave like two server instances.
	first := NewLoginThrottle(store, 2, time.Minute)
	second := NewLoginThrottle(store, 2, time.Minute)
	email := fmt.Sprintf("shared_%d@example.com", time.Now().UnixNano())
	defer func() { _ = first.Succeed(ctx, email, "10.0.0.9") }()

	if err := first.Fail(ctx, email, "10.0.0.9"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := second.Fail(ctx, email, "10.0.0.9"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if locked, _, err := first.Locked(ctx, email, "10.0.0.9"); err != nil || !locked {
		t.Fatalf("expected shared lockout, got locked=%v err=%v", locked, err)
	}
}

func TestAuthTokenCacheUsesRedis(t *testing.T) {
	store := openTestDB(t)
	userID := insertUser(t, store)

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(store, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	raw := cacheClient.Raw()
	if raw == nil {
		t.Fatalf("redis raw client nil")
	}
	key := redisTokenPrefix + token
	got, err := raw.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("get redis token: %v", err)
	}
	if got != userID {
		t.Fatalf("expected user %s in rdb, got %s", userID, got)
	}

	if _, err := store.DB().Exec(`DELETE FROM user_tokens WHERE token = ?`, token); err != nil {
		t.Fatalf("delete token row: %v", err)
	}
	validated, err := svc.ValidateToken(ctx, token)
	if err != nil || validated != userID {
		t.Fatalf("ValidateToken via rdb failed: id=%s err=%v", validated, err)
	}

	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := raw.Get(ctx, key).Result(); err == nil {
		t.Fatalf("expected redis key deleted")
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected error after revoke and rdb delete")
	}

	token2, err := svc.IssueToken(ctx, userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := svc.RevokeUserTokens(ctx, userID); err != nil {
		t.Fatalf("RevokeUserTokens: %v", err)
	}
	if _, err := raw.Get(ctx, redisTokenPrefix+token2).Result(); err == nil {
		t.Fatalf("expected cached token removed with user tokens")
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: true,
			Host:    host,
			Port:    port,
			DB:      db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if raw := client.Raw(); raw != nil {
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup
}
