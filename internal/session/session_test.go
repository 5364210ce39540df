package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	token, err := iss.Issue("u-1", "", "c-9")
	require.NoError(t, err)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, RoleCustomer, claims.Role)
	assert.Equal(t, "c-9", claims.CustomerID)
	assert.False(t, claims.IsAdmin())
}

func TestParse_Rejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	other := NewIssuer("other", time.Hour)
	expired := NewIssuer("secret", -time.Minute)

	foreign, err := other.Issue("u-1", RoleAdmin, "")
	require.NoError(t, err)
	old, err := expired.Issue("u-1", RoleCustomer, "")
	require.NoError(t, err)

	_, err = iss.Parse(foreign)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = iss.Parse(old)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, "session expired", apperr.Message(err, ""))

	_, err = iss.Parse("not-a-jwt")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func newRouter(iss *Issuer) http.Handler {
	r := chi.NewRouter()
	r.Use(iss.Authenticate)
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r.Get("/public", ok)
	r.With(RequireUser).Get("/me", ok)
	r.With(RequireAdmin).Get("/admin", ok)
	return r
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	customer, _ := iss.Issue("u-1", RoleCustomer, "")
	admin, _ := iss.Issue("u-2", RoleAdmin, "")

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"anonymous public", "/public", "", http.StatusNoContent},
		{"anonymous private", "/me", "", http.StatusUnauthorized},
		{"customer private", "/me", customer, http.StatusNoContent},
		{"customer admin", "/admin", customer, http.StatusForbidden},
		{"admin admin", "/admin", admin, http.StatusNoContent},
		{"garbage token", "/public", "garbage", http.StatusUnauthorized},
	}

	h := newRouter(iss)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
