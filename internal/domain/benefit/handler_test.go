package benefit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/middleware"
)

func TestWriteErrorMapping(t *testing.T) {
	h := NewHandler(nil)

	cases := []struct {
		err  error
		want int
		code string
	}{
		{ErrBenefitNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrRedemptionNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrBenefitInactive, http.StatusUnprocessableEntity, "BENEFIT_INACTIVE"},
		{ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{wallet.ErrInsufficientBalance, http.StatusConflict, "INSUFFICIENT_BALANCE"},
		{ErrAlreadyRedeemed, http.StatusConflict, "ALREADY_REDEEMED"},
		{ErrExpired, http.StatusGone, "EXPIRED"},
		{ErrConcurrencyConflict, http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.writeError(w, httptest.NewRequest(http.MethodGet, "/", nil), "test", tc.err)

		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), `"code":"`+tc.code+`"`)
	}
}

func TestScanValidatesBody(t *testing.T) {
	h := NewHandler(nil)
	router := h.MerchantRoutes()

	ctx := context.WithValue(context.Background(), middleware.UserIDKey, uuid.New())

	for body, want := range map[string]int{
		`not json`:          http.StatusBadRequest,
		`{"qr_code":"   "}`: http.StatusUnprocessableEntity,
		`{}`:                http.StatusUnprocessableEntity,
	} {
		req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(body)).WithContext(ctx)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, body)
	}
}

func TestRedeemRequiresAuthenticatedUser(t *testing.T) {
	h := NewHandler(nil)
	router := h.Routes()

	req := httptest.NewRequest(http.MethodPost, "/"+uuid.NewString()+"/redeem", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
