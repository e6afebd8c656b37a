package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/civicrewards/rewards-api/internal/pkg/jwt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareAllowsValidAccessToken(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	userID := uuid.New()
	token, err := jwtSvc.GenerateAccessToken(userID, jwt.RoleCitizen)
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	var gotID uuid.UUID
	var gotRole string
	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetUserID(r.Context())
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotID != userID || gotRole != jwt.RoleCitizen {
		t.Fatalf("claims not propagated: %s %q", gotID, gotRole)
	}
}

func TestAuthMiddlewareRejectsMissingAndMalformedHeaders(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	protected := Auth(jwtSvc)(okHandler())

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestRequireMerchantBlocksCitizen(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	token, _ := jwtSvc.GenerateAccessToken(uuid.New(), jwt.RoleCitizen)

	protected := Auth(jwtSvc)(RequireMerchant()(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/merchant/redemptions/scan", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequestIDPropagatesToContext(t *testing.T) {
	var seen string
	h := RequestID(Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "req-123" {
		t.Fatalf("expected request id in context, got %q", seen)
	}
	if w.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("expected request id echoed in response header")
	}
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	h := CORSHandler([]string{"https://merchant.example.org"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/merchant/redemptions/scan", nil)
	req.Header.Set("Origin", "https://merchant.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://merchant.example.org" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}
}

func TestLoggerLevelFollowsStatus(t *testing.T) {
	cases := map[int]zerolog.Level{
		http.StatusOK:                 zerolog.InfoLevel,
		http.StatusConflict:           zerolog.WarnLevel,
		http.StatusServiceUnavailable: zerolog.ErrorLevel,
	}
	for status, want := range cases {
		if got := levelFor(status); got != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, got)
		}
	}
}
