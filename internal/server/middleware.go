package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// uidKey is the request-context key carrying the authenticated user id.
type uidKey struct{}

// uidFrom returns the authenticated user id set by withAuth.
func uidFrom(r *http.Request) string {
	uid, _ := r.Context().Value(uidKey{}).(string)
	return uid
}

// withAuth validates the bearer credential and stores the resolved user id
// in the request context. Missing or invalid credentials yield 401.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httpError(w, http.StatusUnauthorized, "authentication token required", "")
			return
		}

		uid, err := s.verifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			httpError(w, http.StatusUnauthorized, "token invalid or expired", "")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), uidKey{}, uid)))
	})
}

// withRateLimit applies the per-user fixed-window limit to
// inference-triggering endpoints. Exceeding it returns 429 with a
// retryAfter hint in seconds.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := uidFrom(r)
		if retryAfter, ok := s.limiter.Allow(uid); !ok {
			log.Warn().Str("uid", uid).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":      "too many requests, wait before retrying",
				"retryAfter": int(retryAfter.Seconds()) + 1,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins; the production frontend is served
		// from the same domain.
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
