package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"

	"mentorgo/internal/analytics"
	"mentorgo/internal/auth"
	"mentorgo/internal/service/assistant"
	"mentorgo/internal/storage"
)

func TestHandlersEndToEndFlow(t *testing.T) {
	router := newTestServer(t, Options{})

	email := fmt.Sprintf("tester_%d@example.com", time.Now().UnixNano())
	password := "pass123"

	signupResp := doJSONRequest(t, router, http.MethodPost, "/api/signup", map[string]string{
		"email":    email,
		"password": password,
		"name":     "River",
	}, nil)
	assertStatus(t, signupResp, http.StatusCreated)

	userID, authHeader := login(t, router, email, password)

	userResp := doJSONRequest(t, router, http.MethodGet, "/api/user", nil, authHeader)
	assertStatus(t, userResp, http.StatusOK)
	var userBody struct {
		UserID  string `json:"user_id"`
		Email   string `json:"email"`
		Profile struct {
			ScreenName string `json:"screen_name"`
		} `json:"profile"`
	}
	decodeJSON(t, userResp.Body.Bytes(), &userBody)
	if userBody.UserID != userID || userBody.Profile.ScreenName != "River" {
		t.Fatalf("unexpected user body: %+v", userBody)
	}

	chatResp := doJSONRequest(t, router, http.MethodPost, "/api/chat", map[string]string{
		"message": "I feel anxious and worried, so stressed about coming out to my family",
	}, authHeader)
	assertStatus(t, chatResp, http.StatusOK)
	var turn struct {
		Response  string  `json:"response"`
		Time      string  `json:"time"`
		Sentiment float64 `json:"sentiment"`
		SessionID string  `json:"sessionId"`
		Intent    string  `json:"intent"`
		Tone      string  `json:"tone"`
	}
	decodeJSON(t, chatResp.Body.Bytes(), &turn)
	if turn.Response == "" || turn.SessionID == "" || turn.Time == "" {
		t.Fatalf("incomplete chat turn: %+v", turn)
	}
	if turn.Sentiment >= 0 {
		t.Fatalf("expected negative sentiment, got %v", turn.Sentiment)
	}

	convResp := doJSONRequest(t, router, http.MethodGet, "/api/conversation/"+userID, nil, authHeader)
	assertStatus(t, convResp, http.StatusOK)
	var conv struct {
		Messages []struct {
			Sender string `json:"sender"`
			Text   string `json:"message_text"`
		} `json:"messages"`
		SessionID *string `json:"sessionId"`
	}
	decodeJSON(t, convResp.Body.Bytes(), &conv)
	if len(conv.Messages) != 2 || conv.SessionID == nil || *conv.SessionID != turn.SessionID {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if conv.Messages[0].Sender != "user" || conv.Messages[1].Sender != "bot" {
		t.Fatalf("unexpected sender order: %+v", conv.Messages)
	}
	if conv.Messages[1].Text != turn.Response {
		t.Fatalf("stored reply differs from returned reply")
	}

	renameResp := doJSONRequest(t, router, http.MethodPost, "/api/session/"+turn.SessionID+"/rename",
		map[string]string{"title": "Family talk"}, authHeader)
	assertStatus(t, renameResp, http.StatusOK)

	endResp := doJSONRequest(t, router, http.MethodPost, "/api/end_session",
		map[string]string{"sessionId": turn.SessionID}, authHeader)
	assertStatus(t, endResp, http.StatusOK)
	var endBody struct {
		Summary struct {
			Title string `json:"title"`
			Mood  string `json:"mood"`
		} `json:"summary"`
	}
	decodeJSON(t, endResp.Body.Bytes(), &endBody)
	if endBody.Summary.Title != "Family talk" || endBody.Summary.Mood != "negative" {
		t.Fatalf("unexpected summary: %+v", endBody.Summary)
	}

	// Ending twice is harmless.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/end_session",
		map[string]string{"sessionId": turn.SessionID}, authHeader), http.StatusOK)

	sessionsResp := doJSONRequest(t, router, http.MethodGet, "/api/sessions/"+userID, nil, authHeader)
	assertStatus(t, sessionsResp, http.StatusOK)
	var sessionsBody struct {
		Sessions []struct {
			ID      string `json:"session_id"`
			Status  string `json:"status"`
			Summary string `json:"summary"`
		} `json:"sessions"`
	}
	decodeJSON(t, sessionsResp.Body.Bytes(), &sessionsBody)
	if len(sessionsBody.Sessions) != 1 || sessionsBody.Sessions[0].Status != "completed" || sessionsBody.Sessions[0].Summary == "" {
		t.Fatalf("unexpected sessions: %+v", sessionsBody.Sessions)
	}

	analyticsResp := doJSONRequest(t, router, http.MethodGet, "/api/analytics/"+userID, nil, authHeader)
	assertStatus(t, analyticsResp, http.StatusOK)
	var stats struct {
		TotalSessions int      `json:"totalSessions"`
		AverageMood   *float64 `json:"averageMood"`
		Streak        int      `json:"streak"`
	}
	decodeJSON(t, analyticsResp.Body.Bytes(), &stats)
	if stats.TotalSessions != 1 || stats.Streak != 1 || stats.AverageMood == nil || *stats.AverageMood >= 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	moodResp := doJSONRequest(t, router, http.MethodGet, "/api/mood-data/"+userID+"?days=3", nil, authHeader)
	assertStatus(t, moodResp, http.StatusOK)
	var mood []struct {
		Date  string  `json:"date"`
		Value float64 `json:"value"`
	}
	decodeJSON(t, moodResp.Body.Bytes(), &mood)
	if len(mood) != 3 || mood[2].Value >= 5 || mood[0].Value != 5 {
		t.Fatalf("unexpected mood series: %+v", mood)
	}

	summariesResp := doJSONRequest(t, router, http.MethodGet, "/api/chat-summaries/"+userID, nil, authHeader)
	assertStatus(t, summariesResp, http.StatusOK)
	var summaries []map[string]any
	decodeJSON(t, summariesResp.Body.Bytes(), &summaries)
	if len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(summaries))
	}

	fbResp := doJSONRequest(t, router, http.MethodPost, "/api/feedback", map[string]any{
		"rating":   5,
		"feedback": "helpful",
	}, authHeader)
	assertStatus(t, fbResp, http.StatusCreated)
	var fbBody struct {
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, fbResp.Body.Bytes(), &fbBody)
	if fbBody.SessionID != turn.SessionID {
		t.Fatalf("feedback should link the completed session, got %q", fbBody.SessionID)
	}

	logoutResp := doJSONRequest(t, router, http.MethodPost, "/api/logout", nil, authHeader)
	assertStatus(t, logoutResp, http.StatusNoContent)
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/user", nil, authHeader), http.StatusUnauthorized)

	_, authHeader = login(t, router, email, password)
	delResp := doJSONRequest(t, router, http.MethodDelete, "/api/user", nil, authHeader)
	assertStatus(t, delResp, http.StatusNoContent)

	failLogin := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, failLogin, http.StatusUnauthorized)
}

func TestChangePasswordRevokesOtherTokens(t *testing.T) {
	router := newTestServer(t, Options{})
	email := fmt.Sprintf("rotate_%d@example.com", time.Now().UnixNano())
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/signup", map[string]string{
		"email": email, "password": "pass123",
	}, nil), http.StatusCreated)
	_, laptop := login(t, router, email, "pass123")
	_, phone := login(t, router, email, "pass123")

	resp := doJSONRequest(t, router, http.MethodPost, "/api/change-password", map[string]string{
		"current_password": "pass123",
		"new_password":     "newpass456",
	}, laptop)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.AuthToken == "" {
		t.Fatalf("expected a fresh auth token")
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/user", nil, phone), http.StatusUnauthorized)
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/user", nil, laptop), http.StatusUnauthorized)
	fresh := map[string]string{"Authorization": "Bearer " + body.AuthToken}
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/user", nil, fresh), http.StatusOK)
	login(t, router, email, "newpass456")
}

func TestPathUserMismatchIsForbidden(t *testing.T) {
	router := newTestServer(t, Options{})
	_, authHeader := registerAndLogin(t, router)
	otherID, _ := registerAndLogin(t, router)

	for _, path := range []string{
		"/api/conversation/",
		"/api/sessions/",
		"/api/analytics/",
		"/api/mood-data/",
		"/api/chat-summaries/",
	} {
		resp := doJSONRequest(t, router, http.MethodGet, path+otherID, nil, authHeader)
		assertStatus(t, resp, http.StatusForbidden)
	}
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/sessions/"+otherID, nil, nil), http.StatusUnauthorized)
}

func TestCookieAuthRequiresCSRF(t *testing.T) {
	router := newTestServer(t, Options{})
	email := fmt.Sprintf("cookie_%d@example.com", time.Now().UnixNano())
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/signup", map[string]string{
		"email": email, "password": "pass123",
	}, nil), http.StatusCreated)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
		"email": email, "password": "pass123",
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var authCookie, csrfCookie *http.Cookie
	for _, ck := range loginResp.Result().Cookies() {
		switch ck.Name {
		case "auth_token":
			authCookie = ck
		case "csrf_token":
			csrfCookie = ck
		}
	}
	if authCookie == nil || csrfCookie == nil {
		t.Fatalf("expected auth and csrf cookies")
	}

	body := map[string]string{"message": "hello there"}
	noCSRF := doRequest(t, router, http.MethodPost, "/api/chat", body, nil, authCookie)
	assertStatus(t, noCSRF, http.StatusForbidden)

	withCSRF := doRequest(t, router, http.MethodPost, "/api/chat", body,
		map[string]string{"X-CSRF-Token": csrfCookie.Value}, authCookie, csrfCookie)
	assertStatus(t, withCSRF, http.StatusOK)

	read := doRequest(t, router, http.MethodGet, "/api/user", nil, nil, authCookie)
	assertStatus(t, read, http.StatusOK)
}

func TestLoginThrottleLocksOut(t *testing.T) {
	router := newTestServer(t, Options{Throttle: auth.NewLoginThrottle(memorystore.NewStore(), 3, time.Hour)})
	email := fmt.Sprintf("throttle_%d@example.com", time.Now().UnixNano())
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/signup", map[string]string{
		"email": email, "password": "pass123",
	}, nil), http.StatusCreated)

	for i := 0; i < 3; i++ {
		resp := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
			"email": email, "password": "wrong-pass",
		}, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	}
	locked := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
		"email": email, "password": "pass123",
	}, nil)
	assertStatus(t, locked, http.StatusTooManyRequests)
	if locked.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestSuccessfulLoginClearsFailures(t *testing.T) {
	router := newTestServer(t, Options{Throttle: auth.NewLoginThrottle(memorystore.NewStore(), 3, time.Hour)})
	email := fmt.Sprintf("recover_%d@example.com", time.Now().UnixNano())
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/signup", map[string]string{
		"email": email, "password": "pass123",
	}, nil), http.StatusCreated)

	wrong := map[string]string{"email": email, "password": "wrong-pass"}
	for round := 0; round < 2; round++ {
		for i := 0; i < 2; i++ {
			assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/login", wrong, nil), http.StatusUnauthorized)
		}
		login(t, router, email, "pass123")
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter, err := NewRateLimiter("2-M", nil)
	if err != nil {
		t.Fatalf("NewRateLimiter: %v", err)
	}
	router := newTestServer(t, Options{RateLimiter: limiter})
	body := map[string]string{"email": "nobody@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/login", body, nil), http.StatusUnauthorized)
	}
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/login", body, nil), http.StatusTooManyRequests)
	// Routes without the limiter are unaffected.
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/health", nil, nil), http.StatusOK)
}

func TestRequestValidation(t *testing.T) {
	router := newTestServer(t, Options{})
	userID, authHeader := registerAndLogin(t, router)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"empty chat message", http.MethodPost, "/api/chat", map[string]string{"message": "   "}, http.StatusBadRequest},
		{"rating out of range", http.MethodPost, "/api/feedback", map[string]int{"rating": 9}, http.StatusBadRequest},
		{"missing rating", http.MethodPost, "/api/feedback", map[string]string{"feedback": "x"}, http.StatusBadRequest},
		{"bad mood days", http.MethodGet, "/api/mood-data/" + userID + "?days=abc", nil, http.StatusBadRequest},
		{"bad summary limit", http.MethodGet, "/api/chat-summaries/" + userID + "?limit=0", nil, http.StatusBadRequest},
		{"end without id", http.MethodPost, "/api/end_session", map[string]string{}, http.StatusBadRequest},
		{"end unknown session", http.MethodPost, "/api/end_session", map[string]string{"sessionId": "missing"}, http.StatusNotFound},
		{"messages of unknown session", http.MethodGet, "/api/session/missing/messages", nil, http.StatusNotFound},
		{"rename to blank", http.MethodPost, "/api/session/missing/rename", map[string]string{"title": " "}, http.StatusBadRequest},
		{"bad response length", http.MethodPut, "/api/preferences", map[string]string{"preferred_response_length": "huge"}, http.StatusBadRequest},
		{"wrong current password", http.MethodPost, "/api/change-password", map[string]string{"current_password": "nope", "new_password": "newpass1"}, http.StatusUnauthorized},
		{"short new password", http.MethodPost, "/api/change-password", map[string]string{"current_password": "pass123", "new_password": "abc"}, http.StatusBadRequest},
		{"rating below range", http.MethodPost, "/api/feedback", map[string]int{"rating": 0}, http.StatusBadRequest},
		{"unknown chat mode", http.MethodPost, "/api/session/start", map[string]string{"chat_mode": "oracle"}, http.StatusBadRequest},
		{"overlong title", http.MethodPost, "/api/session/missing/rename", map[string]string{"title": strings.Repeat("t", 201)}, http.StatusBadRequest},
		{"bad new email", http.MethodPost, "/api/change-email", map[string]string{"new_email": "nope", "password": "pass123"}, http.StatusBadRequest},
		{"login without password", http.MethodPost, "/api/login", map[string]string{"email": "a@example.com"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := doJSONRequest(t, router, tc.method, tc.path, tc.body, authHeader)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestStartSessionWithChatMode(t *testing.T) {
	router := newTestServer(t, Options{})
	_, authHeader := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/session/start", map[string]string{
		"title": "Push me", "chat_mode": "challenge",
	}, authHeader)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		SessionID string `json:"sessionId"`
		ChatMode  string `json:"chatMode"`
		Title     string `json:"title"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.ChatMode != "challenge" || body.Title != "Push me" {
		t.Fatalf("unexpected session: %+v", body)
	}

	// The active session is reused, mode unchanged.
	again := doJSONRequest(t, router, http.MethodPost, "/api/session/start", nil, authHeader)
	assertStatus(t, again, http.StatusOK)
	var reused struct {
		SessionID string `json:"sessionId"`
		ChatMode  string `json:"chatMode"`
	}
	decodeJSON(t, again.Body.Bytes(), &reused)
	if reused.SessionID != body.SessionID || reused.ChatMode != "challenge" {
		t.Fatalf("expected the active session back, got %+v", reused)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	router := newTestServer(t, Options{})
	body := map[string]string{"email": "dup@example.com", "password": "pass123"}
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/signup", body, nil), http.StatusCreated)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/signup", body, nil), http.StatusConflict)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/signup",
		map[string]string{"email": "not-an-email", "password": "pass123"}, nil), http.StatusBadRequest)
}

func TestSecurityHeadersOnResponses(t *testing.T) {
	router := newTestServer(t, Options{Features: map[string]bool{"llm": false}})
	resp := doJSONRequest(t, router, http.MethodGet, "/api/health", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	for header, want := range map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	} {
		if got := resp.Header().Get(header); got != want {
			t.Fatalf("%s: expected %q, got %q", header, want, got)
		}
	}
	if resp.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain http")
	}
}

func newTestServer(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	svc := assistant.NewService(store, assistant.Options{})
	authService := auth.NewService(store, nil, time.Hour)
	handler := NewHandler(svc, authService, analytics.NewAggregator(store), opts)

	router := gin.New()
	handler.Use(router)
	handler.RegisterRoutes(router)
	return router
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, router, method, path, body, headers)
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func login(t *testing.T, router *gin.Engine, email, password string) (string, map[string]string) {
	t.Helper()
	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		UserID    string `json:"user_id"`
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" || loginBody.UserID == "" {
		t.Fatalf("expected auth token after login")
	}
	return loginBody.UserID, map[string]string{"Authorization": fmt.Sprintf("Bearer %s", loginBody.AuthToken)}
}

func registerAndLogin(t *testing.T, router *gin.Engine) (string, map[string]string) {
	t.Helper()
	email := fmt.Sprintf("tester_%d@example.com", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/signup", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	return login(t, router, email, password)
}
