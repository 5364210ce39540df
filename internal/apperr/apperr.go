package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Classification sentinels. Domain packages wrap these so transport code can
// map any error to a status without knowing the domain.
var (
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrPayment       = errors.New("payment failed")
	ErrUnavailable   = errors.New("upstream unavailable")
	ErrInvalidRecord = errors.New("invalid record")
)

// Error is a classified error with a message safe to show to a user.
type Error struct {
	kind error
	msg  string
	err  error
}

func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap classifies err under kind while keeping msg as the user-facing text.
func Wrap(kind error, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Message is the text surfaced to the user.
func (e *Error) Message() string { return e.msg }

func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.err }

// Message returns the user-facing message of the first classified error in
// the chain, or fallback.
func Message(err error, fallback string) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message()
	}
	return fallback
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidRecord):
		return "invalid_argument"
	case errors.Is(err, ErrUnauthorized):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "permission_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPayment):
		return "payment_failed"
	case errors.Is(err, ErrUnavailable):
		return "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal_error"
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "invalid_argument":
		return http.StatusBadRequest
	case "unauthenticated":
		return http.StatusUnauthorized
	case "permission_denied":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "payment_failed":
		return http.StatusPaymentRequired
	case "service_unavailable":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	case "canceled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
