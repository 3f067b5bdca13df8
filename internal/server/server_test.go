package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend-dailyrecord/internal/auth"
	"backend-dailyrecord/internal/config"
	"backend-dailyrecord/internal/logging"

	"github.com/pashagolub/pgxmock/v3"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		JWTSecret:      "secret",
		ServerPort:     ":0",
		UploadDir:      t.TempDir(),
		CORSOrigin:     "http://localhost:3000",
		BcryptCost:     4,
		MaxUploadBytes: 1 << 20,
		AITimeout:      time.Second,
	}
}

func newTestServer(t *testing.T) (*Server, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	s, err := NewServer(testConfig(t), mock, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.Close)
	return s, mock
}

func TestHealthRoute(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 status")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t)
	_, _ = s.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "dailyrecord_api_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s, _ := newTestServer(t)

	for _, target := range []string{"/api/members/me", "/posts/public", "/api/photos/p1", "/uploads/x.jpg", "/stream/ws"} {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("%s: %v", target, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, resp.StatusCode)
		}
		var out map[string]string
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, &out); err != nil || out["error"] == "" {
			t.Fatalf("%s: expected error body, got %s", target, raw)
		}
	}
}

func TestCookieAuthReachesHandlers(t *testing.T) {
	s, mock := newTestServer(t)
	token, err := auth.NewCodec("secret").Issue("a@x.com", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mock.ExpectQuery(`WHERE status=\$1`).WillReturnRows(pgxmock.NewRows(
		[]string{"id", "title", "content", "status", "published_at", "member_id", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodGet, "/posts/public", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", resp.StatusCode, err)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/members/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials allowed")
	}
}

func TestNewServerRejectsBadUploadDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadDir = ""
	if _, err := NewServer(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for empty upload dir")
	}
}

func TestServerErrorLogsCause(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "info", Output: &buf})
	defer logging.Init(logging.Config{})

	s, mock := newTestServer(t)
	mock.ExpectQuery(`INSERT INTO members`).WillReturnError(errors.New("connection reset by peer"))

	body := strings.NewReader(`{"username":"user1","email":"a@x.com","password":"pw"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/members/register", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), "connection reset") {
		t.Fatalf("cause leaked to client: %s", raw)
	}
	if !strings.Contains(buf.String(), "could not create member: connection reset by peer") {
		t.Fatalf("expected cause in log, got %s", buf.String())
	}
}
