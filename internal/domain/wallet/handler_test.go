package wallet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreditRejectsInvalidPayload(t *testing.T) {
	h := NewHandler(nil)
	router := h.AdminRoutes()

	cases := map[string]struct {
		path string
		body string
		want int
	}{
		"bad user id":    {"/not-a-uuid/credit", `{"amount":10,"description":"x"}`, http.StatusBadRequest},
		"unknown field":  {"/6f1c2a52-5d6b-4c1e-9a0d-1f7f2b8e9c11/credit", `{"amount":10,"description":"x","extra":1}`, http.StatusBadRequest},
		"zero amount":    {"/6f1c2a52-5d6b-4c1e-9a0d-1f7f2b8e9c11/credit", `{"amount":0,"description":"x"}`, http.StatusUnprocessableEntity},
		"no description": {"/6f1c2a52-5d6b-4c1e-9a0d-1f7f2b8e9c11/credit", `{"amount":5,"description":"  "}`, http.StatusUnprocessableEntity},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestWriteErrorMapping(t *testing.T) {
	h := NewHandler(nil)

	cases := []struct {
		err  error
		want int
		code string
	}{
		{ErrWalletNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrInvalidAmount, http.StatusBadRequest, "BAD_REQUEST"},
		{ErrInsufficientBalance, http.StatusConflict, "INSUFFICIENT_BALANCE"},
		{ErrConcurrencyConflict, http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		h.writeError(w, r.WithContext(context.Background()), "test", tc.err)

		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), `"code":"`+tc.code+`"`)
	}
}

func TestMetadataScan(t *testing.T) {
	var m Metadata
	assert.NoError(t, m.Scan([]byte(`{"previous_balance":10,"new_balance":25}`)))
	assert.Equal(t, int64(10), m.PreviousBalance)
	assert.Equal(t, int64(25), m.NewBalance)
	assert.Nil(t, m.ActorID)

	assert.NoError(t, m.Scan(nil))
	assert.Equal(t, Metadata{}, m)

	assert.Error(t, m.Scan(42))
}
