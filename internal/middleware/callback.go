package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"dinein-service/pkg/response"
)

// CallbackAuth guards the bank callback webhook with a shared secret sent in
// X-Callback-Secret. An empty secret disables the webhook.
func CallbackAuth(secret string) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				response.Error(w, http.StatusForbidden, "FORBIDDEN", "Payment callbacks are disabled")
				return
			}
			got := strings.TrimSpace(r.Header.Get("X-Callback-Secret"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid callback secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
