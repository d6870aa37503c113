package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lobby-server/internal/history"
)

const (
	defaultMatchesLimit = 20
	maxMatchesLimit     = 100
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/matches", s.matchesHandler)
	r.Get("/ws", s.websocketHandler)
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// matchesHandler lists recently launched matches, newest first. The optional
// limit query parameter caps the count.
func (s *Server) matchesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultMatchesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxMatchesLimit)
	}

	matches, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load match history")
		http.Error(w, "Failed to load match history", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []history.Match{}
	}
	s.writeJSON(w, http.StatusOK, matches)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write response")
	}
}
