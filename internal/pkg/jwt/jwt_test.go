package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", time.Minute)
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, RoleMerchant)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != userID || claims.Role != RoleMerchant {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestExpiredToken(t *testing.T) {
	svc := NewService("secret", -time.Minute)
	token, err := svc.GenerateAccessToken(uuid.New(), RoleCitizen)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := svc.ValidateAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestWrongSecret(t *testing.T) {
	token, _ := NewService("one", time.Minute).GenerateAccessToken(uuid.New(), RoleAdmin)
	if _, err := NewService("two", time.Minute).ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
