package api

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const principalContextKey contextKey = "principal"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireUpload checks the Authorization header against the configured
// verifier and injects the resolved principal into the request
// context. Both "Bearer {token}" and a bare token are accepted; old
// app builds send the latter.
func (s *server) requireUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")

		if token == "" {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authorization required"})

			return
		}

		principal, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"invalid upload token"})

			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principalFromContext extracts the verified uploader from the request
// context.
func principalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(principalContextKey).(string)

	return principal
}
