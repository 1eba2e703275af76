// Package mockexec is a stand-in grading executor for local runs. It
// answers every grading request with a configurable grade and feedback
// after a configurable delay.
package mockexec

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config is the canned answer.
type Config struct {
	Grade    int     `json:"grade"`
	Feedback string  `json:"feedback"`
	DelaySec float64 `json:"delaySec"`
}

// DefaultConfig returns a passing grade after three seconds.
func DefaultConfig() Config {
	return Config{Grade: 100, Feedback: "All tests passed.", DelaySec: 3}
}

func (c Config) delay() time.Duration {
	return time.Duration(c.DelaySec * float64(time.Second))
}

// gradeRequest mirrors the fields of the grading request that are logged.
type gradeRequest struct {
	Submission string `json:"submission"`
	ImageName  string `json:"image_name"`
	MaxTimeSec int    `json:"max_time_sec"`
}

// Server is the mock executor's HTTP handler.
type Server struct {
	router chi.Router
	logger *slog.Logger

	mu     sync.RWMutex
	config Config

	graded atomic.Int64
}

// New creates a mock executor answering with cfg.
func New(cfg Config, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger.With("component", "mock-executor"),
		config: cfg,
	}
	s.router.Use(middleware.Recoverer)
	s.router.Post("/v1/grade", s.handleGrade)
	s.router.Get("/config", s.handleGetConfig)
	s.router.Put("/config", s.handlePutConfig)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Config returns the current canned answer.
func (s *Server) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Graded returns how many grading requests were answered.
func (s *Server) Graded() int64 {
	return s.graded.Load()
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	cfg := s.Config()
	s.logger.Info("grading submission", "image", req.ImageName, "delay", cfg.delay(), "grade", cfg.Grade)

	if d := cfg.delay(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.Context().Done():
			s.logger.Warn("caller gave up", "image", req.ImageName)
			return
		}
	}

	s.graded.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{"grade": cfg.Grade, "feedback": cfg.Feedback})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Config())
}

// handlePutConfig merges the given fields into the current config.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	next := s.config
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if next.Grade < 0 || next.Grade > 100 || next.DelaySec < 0 {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "grade must be 0..100 and delaySec >= 0"})
		return
	}
	s.config = next
	s.mu.Unlock()

	s.logger.Info("config updated", "grade", next.Grade, "delay_sec", next.DelaySec)
	writeJSON(w, http.StatusOK, next)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
