// Package ops exposes a small read-only HTTP surface for operators: a health
// probe and a results export. It never touches live progress state beyond
// reading counters.
package ops

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/screener/internal/catalog"
	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/session"
	"github.com/pavelanni/screener/internal/store"
)

const authUser = "admin"

type Server struct {
	store        *store.Store
	catalog      *catalog.Catalog
	cache        *session.Cache
	passwordHash []byte
}

// New creates the ops server. The password guards /api; it is hashed once at
// startup and never kept in clear.
func New(st *store.Store, cat *catalog.Catalog, cache *session.Cache, password string) (*Server, error) {
	if password == "" {
		return nil, fmt.Errorf("ops password is required: set --ops-password flag or SCREENER_OPS_PASSWORD env var")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash ops password: %w", err)
	}
	return &Server{store: st, catalog: cat, cache: cache, passwordHash: hash}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Use(s.basicAuth)
		api.Get("/results", s.handleResults)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":          "ok",
		"questions":       s.catalog.Count(),
		"active_sessions": s.cache.Active(),
		"judged":          s.cache.JudgedCount(),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, _ *http.Request) {
	results, err := s.store.ExportResults()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, model.ResultsExport{
		QuestionCount: s.catalog.Count(),
		Results:       results,
	})
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != authUser ||
			bcrypt.CompareHashAndPassword(s.passwordHash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="screener"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
