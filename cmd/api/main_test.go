package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/civicrewards/rewards-api/internal/config"
	"github.com/civicrewards/rewards-api/internal/domain/benefit"
	"github.com/civicrewards/rewards-api/internal/domain/mission"
	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/pkg/jwt"
)

func testRouter(t *testing.T) (http.Handler, *jwt.Service) {
	t.Helper()
	jwtService := jwt.NewService("router-test-secret", time.Minute)
	cfg := &config.Config{AllowedOrigins: []string{"*"}}
	// Guards reject before any handler touches its service.
	r := newRouter(cfg, jwtService, handlers{
		wallet:  wallet.NewHandler(nil),
		benefit: benefit.NewHandler(nil),
		mission: mission.NewHandler(nil),
	})
	return r, jwtService
}

func TestRouterRoleGuards(t *testing.T) {
	r, jwtService := testRouter(t)

	token := func(role string) string {
		tok, err := jwtService.GenerateAccessToken(uuid.New(), role)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		return tok
	}

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"anonymous wallet", http.MethodGet, "/api/v1/wallet", "", http.StatusUnauthorized},
		{"merchant on wallet", http.MethodGet, "/api/v1/wallet", jwt.RoleMerchant, http.StatusForbidden},
		{"citizen scans", http.MethodPost, "/api/v1/merchant/redemptions/scan", jwt.RoleCitizen, http.StatusForbidden},
		{"admin scans", http.MethodPost, "/api/v1/merchant/redemptions/scan", jwt.RoleAdmin, http.StatusForbidden},
		{"citizen approves", http.MethodPost, "/api/v1/admin/submissions/" + uuid.NewString() + "/approve", jwt.RoleCitizen, http.StatusForbidden},
		{"merchant credits", http.MethodPost, "/api/v1/admin/wallets/" + uuid.NewString() + "/credit", jwt.RoleMerchant, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.role != "" {
				req.Header.Set("Authorization", "Bearer "+token(tt.role))
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRouterPublicEndpoints(t *testing.T) {
	r, _ := testRouter(t)

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}
