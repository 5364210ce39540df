package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRespondErr_ClassifiedError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErr(rec, zap.NewNop(), apperr.New(apperr.ErrNotFound, "order not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "order not found", body.Error)
	assert.Equal(t, "not_found", body.Code)
}

func TestRespondErr_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErr(rec, zap.NewNop(), errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestDecode(t *testing.T) {
	var dst struct {
		Quantity int `json:"quantity"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":3}`))
	require.NoError(t, Decode(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, 3, dst.Quantity)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":3}`))
	err := Decode(httptest.NewRecorder(), req, &dst)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	err = Decode(httptest.NewRecorder(), req, &dst)
	assert.Equal(t, "request body is empty", apperr.Message(err, ""))
}

func TestDecodeResponse(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"id":"o-1"}`))}
	var dst struct {
		ID string `json:"id"`
	}
	require.NoError(t, DecodeResponse(ok, &dst))
	assert.Equal(t, "o-1", dst.ID)

	conflict := &http.Response{
		StatusCode: http.StatusConflict,
		Body:       io.NopCloser(strings.NewReader(`{"error":"insufficient stock for Shirt (M)","code":"conflict"}`)),
	}
	err := DecodeResponse(conflict, &dst)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "insufficient stock for Shirt (M)", apperr.Message(err, ""))

	broken := &http.Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(strings.NewReader(`oops`))}
	err = DecodeResponse(broken, nil)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, "Internal Server Error", apperr.Message(err, ""))
}
