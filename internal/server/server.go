// Package server implements the Removin inference gateway: an authenticated
// HTTP proxy that attaches a user's stored inference token and forwards
// processing requests to the external provider.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/removin/removin/internal/auth"
	"github.com/removin/removin/internal/store"
)

// Provider is the inference backend the gateway forwards to.
type Provider interface {
	Predict(ctx context.Context, token, version string, input map[string]interface{}) (json.RawMessage, error)
}

// Server holds the gateway's collaborators and assembles its HTTP surface.
type Server struct {
	verifier auth.Verifier
	creds    store.CredentialStore
	provider Provider
	limiter  *RateLimiter
}

// New creates a gateway server. The rate limiter caps inference-triggering
// endpoints at inferenceLimit requests per minute per user.
func New(verifier auth.Verifier, creds store.CredentialStore, provider Provider, inferenceLimit int) *Server {
	return &Server{
		verifier: verifier,
		creds:    creds,
		provider: provider,
		limiter:  NewRateLimiter(inferenceLimit, time.Minute),
	}
}

// Handler assembles the route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/api/user/token", s.withAuth(http.HandlerFunc(s.handleToken)))
	mux.Handle("/api/remove-bg", s.withAuth(s.withRateLimit(http.HandlerFunc(s.handleRemoveBg))))
	mux.Handle("/api/generate-image", s.withAuth(s.withRateLimit(http.HandlerFunc(s.handleGenerateImage))))

	return withLogging(withCORS(mux))
}

// HTTPServer wraps the handler in an http.Server with the timeouts the
// gateway needs: inference calls run with a wait-for-completion directive,
// so the write timeout has to outlast a slow prediction.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// respondJSON writes a JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// httpError writes a JSON error body, optionally with a machine-readable code.
func httpError(w http.ResponseWriter, status int, message, code string) {
	body := map[string]interface{}{"error": message}
	if code != "" {
		body["code"] = code
	}
	respondJSON(w, status, body)
}
