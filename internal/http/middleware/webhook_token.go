package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WebhookTokenHeader carries the shared secret configured on the voice agent.
const WebhookTokenHeader = "X-Retell-Webhook-Token"

// WebhookToken rejects requests whose token header does not match expected.
// An empty expected token disables the check.
func WebhookToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "Invalid webhook token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"error","message":"` + message + `"}`))
}
