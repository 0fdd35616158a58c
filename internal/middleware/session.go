package middleware

import (
	"net/http"
)

// SessionChecker reports whether a credential is held.
type SessionChecker interface {
	Credential() (string, error)
}

// RequireSession rejects requests with 401 while no session is held.
func RequireSession(sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := sessions.Credential(); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"not logged in"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
