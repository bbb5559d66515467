// Package api exposes the HTTP surface: public recommendation, rerank and
// outcome endpoints, plus bearer-protected experiment administration.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/experiment"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
	"github.com/mbolshakov/gotrial/internal/telemetry"
)

type Server struct {
	manager     *experiment.Manager
	store       store.Store
	factory     *resolver.Factory
	adminAPIKey string
	log         zerolog.Logger
}

func NewServer(m *experiment.Manager, st store.Store, f *resolver.Factory, adminKey string, log zerolog.Logger) *Server {
	return &Server{
		manager:     m,
		store:       st,
		factory:     f,
		adminAPIKey: adminKey,
		log:         log.With().Str("component", "api").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware(routePattern))
	r.Use(middleware.Timeout(15 * time.Second))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// public: resolution + outcome tracking
	r.Get("/v1/recommendations", s.handleRecommendations)
	r.Get("/v1/rerank", s.handleRerank)
	r.Post("/v1/outcome", s.handleOutcome)

	// admin (protected): experiment lifecycle
	r.Post("/v1/experiments", s.authAdmin(s.handleCreateExperiment))
	r.Get("/v1/experiments", s.authAdmin(s.handleListExperiments))
	r.Get("/v1/experiments/{id}", s.authAdmin(s.handleGetExperiment))
	r.Put("/v1/experiments/{id}/status", s.authAdmin(s.handleSetStatus))
	r.Delete("/v1/experiments/{id}", s.authAdmin(s.handleDeleteExperiment))

	return r
}

// routePattern returns the chi route pattern for metrics labels, falling
// back to empty for unmatched requests.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// ---- middleware & helpers ----

func (s *Server) authAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		got = strings.TrimSpace(strings.TrimPrefix(got, "Bearer"))
		if got == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		// constant-time compare
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminAPIKey)) != 1 {
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}
		// No store means the experiment table is not configured; the
		// public endpoints still serve defaults but there is nothing to
		// administer.
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, "experimentation is not configured")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
	})
}
