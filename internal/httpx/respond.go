package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fjod/go_storefront/internal/apperr"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20 // 1MB

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// RespondErr maps a domain error to a status and a {error, code} body. Server
// errors are logged and their detail hidden from the client.
func RespondErr(w http.ResponseWriter, log *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err, http.StatusText(status))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err), zap.Int("status", status))
	}
	RespondError(w, status, apperr.Kind(err), msg)
}

// Decode reads a JSON body into dst, rejecting unknown fields and bodies
// over 1MB.
func Decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.ErrValidation, "request body is empty")
		}
		return apperr.Wrap(apperr.ErrValidation, "invalid JSON body", err)
	}
	return nil
}

// DecodeResponse reads either the success payload or an ErrorResponse from
// an upstream reply. Non-2xx statuses become classified errors carrying the
// upstream message.
func DecodeResponse(resp *http.Response, dst interface{}) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if dst == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var body ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return apperr.New(kindForStatus(resp.StatusCode), msg)
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.ErrValidation
	case http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case http.StatusForbidden:
		return apperr.ErrForbidden
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusConflict:
		return apperr.ErrConflict
	case http.StatusPaymentRequired:
		return apperr.ErrPayment
	default:
		return apperr.ErrUnavailable
	}
}
