package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"nil", nil, "", http.StatusOK},
		{"validation", New(ErrValidation, "cart is empty"), "invalid_argument", http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("get order: %w", New(ErrNotFound, "order not found")), "not_found", http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, "unauthenticated", http.StatusUnauthorized},
		{"forbidden", ErrForbidden, "permission_denied", http.StatusForbidden},
		{"conflict", New(ErrConflict, "insufficient stock"), "conflict", http.StatusConflict},
		{"payment", New(ErrPayment, "card declined"), "payment_failed", http.StatusPaymentRequired},
		{"unavailable", ErrUnavailable, "service_unavailable", http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "timeout", http.StatusGatewayTimeout},
		{"canceled", context.Canceled, "canceled", http.StatusRequestTimeout},
		{"plain", errors.New("boom"), "internal_error", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, Kind(tc.err))
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
		})
	}
}

func TestWrap_KeepsCauseAndMessage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("create order: %w", Wrap(ErrUnavailable, "order service unavailable", cause))

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "order service unavailable", Message(err, "fallback"))
	assert.Equal(t, "fallback", Message(cause, "fallback"))
	assert.Contains(t, err.Error(), "dial tcp: refused")
}
