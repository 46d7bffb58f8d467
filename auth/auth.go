package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// HeaderAdminToken carries the shared administrator secret.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdmin guards administrator endpoints with a shared-secret equality
// check. The secret is read from the X-Admin-Token header, falling back to the
// password query parameter for the legacy admin page. The check runs before
// any handler side effect; comparison is constant time.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				http.Error(w, "admin access disabled", http.StatusUnauthorized)
				return
			}
			supplied := strings.TrimSpace(r.Header.Get(HeaderAdminToken))
			if supplied == "" {
				supplied = strings.TrimSpace(r.URL.Query().Get("password"))
			}
			if subtle.ConstantTimeCompare([]byte(supplied), expected) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
