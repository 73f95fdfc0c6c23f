package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskhive/taskhive/config"
	"github.com/taskhive/taskhive/server/api"
	"github.com/taskhive/taskhive/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		Server: config.ServerConfig{Addr: ":0"},
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret-key-1234567890",
			AccessExpiryMins:  30,
			RefreshExpiryDays: 7,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, "test", logger)
}

func TestSignAndVerifyToken(t *testing.T) {
	s := newTestServer(t)

	token, err := s.signToken("user-1", "alice@example.com", "user", tokenTypeAccess, s.accessTTL())
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}

	c, err := s.verifyToken(token)
	if err != nil {
		t.Fatalf("verifyToken: %v", err)
	}
	if c.Subject != "user-1" || c.Email != "alice@example.com" || c.TokenType != tokenTypeAccess {
		t.Errorf("unexpected claims: %+v", c)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	s := newTestServer(t)
	token, err := s.signToken("user-1", "alice@example.com", "user", tokenTypeAccess, s.accessTTL())
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}

	other := newTestServer(t)
	other.cfg.Auth.JWTSecret = "a-different-secret-entirely"
	if _, err := other.verifyToken(token); err == nil {
		t.Fatal("expected verification to fail with the wrong secret")
	}
}

func TestAuthMiddleware_InjectsIdentity(t *testing.T) {
	s := newTestServer(t)
	token, err := s.signToken("user-1", "alice@example.com", "admin", tokenTypeAccess, s.accessTTL())
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}

	var got api.Identity
	handler := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = api.IdentityFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.UserID != "user-1" || got.Email != "alice@example.com" || got.Role != "admin" {
		t.Errorf("identity = %+v", got)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	s := newTestServer(t)
	handler := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_RejectsRefreshToken(t *testing.T) {
	s := newTestServer(t)
	token, err := s.signToken("user-1", "alice@example.com", "user", tokenTypeRefresh, s.refreshTTL())
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}

	handler := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleRefresh(t *testing.T) {
	s := newTestServer(t)
	pair, err := s.issueTokenPair("user-1", "alice@example.com", "user")
	if err != nil {
		t.Fatalf("issueTokenPair: %v", err)
	}

	body, _ := json.Marshal(refreshRequest{RefreshToken: pair.RefreshToken})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRefresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got tokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.AccessToken == "" || got.RefreshToken == "" {
		t.Error("expected a fresh token pair")
	}

	c, err := s.verifyToken(got.AccessToken)
	if err != nil {
		t.Fatalf("verify new access token: %v", err)
	}
	if c.Subject != "user-1" || c.TokenType != tokenTypeAccess {
		t.Errorf("claims = %+v", c)
	}
}

func TestHandleRefresh_RejectsAccessToken(t *testing.T) {
	s := newTestServer(t)
	pair, err := s.issueTokenPair("user-1", "alice@example.com", "user")
	if err != nil {
		t.Fatalf("issueTokenPair: %v", err)
	}

	body, _ := json.Marshal(refreshRequest{RefreshToken: pair.AccessToken})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRefresh(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_AgainstFakeAuthService(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v1/token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"upstream","user":{"id":"user-9","email":"bob@example.com"}}`))
		case r.URL.Path == "/rest/v1/profiles":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":"user-9","email":"bob@example.com","role":"admin"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer fake.Close()

	s := newTestServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.SetStore(store.New(fake.URL, "anon", "service", logger))

	body, _ := json.Marshal(credentialsRequest{Email: "bob@example.com", Password: "hunter22"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var pair tokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	c, err := s.verifyToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if c.Subject != "user-9" || c.Role != "admin" {
		t.Errorf("claims = %+v", c)
	}
}

func TestAdminMiddleware(t *testing.T) {
	s := newTestServer(t)
	handler := s.adminMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req = req.WithContext(api.ContextWithIdentity(req.Context(), api.Identity{UserID: "u", Role: "user"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req = req.WithContext(api.ContextWithIdentity(req.Context(), api.Identity{UserID: "a", Role: "admin"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Server.RatePerMinute = 2
	handler := s.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests = %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", codes[2])
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.RemoteAddr = "10.0.0.2:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d, want 200", rec.Code)
	}
}

func TestClientLimitersEvictIdleBuckets(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiters := newClientLimiters(60)
	limiters.now = func() time.Time { return clock }

	limiters.get("10.0.0.1")
	limiters.get("10.0.0.2")
	if len(limiters.clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(limiters.clients))
	}

	// One client stays active; the other goes quiet past the cutoff.
	clock = clock.Add(limiterMaxIdle - time.Minute)
	limiters.get("10.0.0.1")
	clock = clock.Add(3 * time.Minute)
	limiters.get("10.0.0.3")

	if len(limiters.clients) != 2 {
		t.Fatalf("clients = %d after sweep, want 2", len(limiters.clients))
	}
	if _, ok := limiters.clients["10.0.0.2"]; ok {
		t.Error("idle client survived the sweep")
	}
	if _, ok := limiters.clients["10.0.0.1"]; !ok {
		t.Error("active client evicted by sweep")
	}
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Server.CORSOrigins = []string{"http://localhost:5173"}
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}

	// Unlisted origins get no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin for unlisted origin = %q, want empty", got)
	}
}
