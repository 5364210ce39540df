package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	CookieName   = "cart_sid"
	cookieMaxAge = 30 * 24 * time.Hour
)

type sidKey struct{}

// CartCookie makes sure every request carries a cart session id, issuing a
// new cookie when it is missing or malformed.
func CartCookie(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(CookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					sid = c.Value
				}
			}
			if sid == "" {
				sid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(cookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sidKey{}, sid)))
		})
	}
}

func sessionID(ctx context.Context) string {
	sid, _ := ctx.Value(sidKey{}).(string)
	return sid
}
