// Package ops exposes the operational HTTP surface of the scheduler
// process: liveness, readiness, and a manual job trigger for debugging and
// backfills. This is deliberately not the product CRUD API, which lives in
// a separate service.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"certsentry/internal/config"
	"certsentry/internal/scheduler"
	"certsentry/internal/types"
)

// readinessTimeout bounds the database ping on the readiness probe.
const readinessTimeout = 2 * time.Second

// JobRunner is the scheduler surface the manual trigger invokes.
type JobRunner interface {
	Run(ctx context.Context) (*scheduler.RunStats, error)
}

// Pinger reports whether the backing database is reachable. Satisfied by
// *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the operational HTTP listener.
type Server struct {
	runner JobRunner
	db     Pinger
	build  config.BuildInfo
	logger types.Logger
}

// ServerConfig holds the dependencies needed to create a Server.
type ServerConfig struct {
	Runner JobRunner
	DB     Pinger
	Build  config.BuildInfo
	Logger types.Logger
}

// NewServer creates the ops Server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		runner: cfg.Runner,
		db:     cfg.DB,
		build:  cfg.Build,
		logger: cfg.Logger,
	}
}

// Handler builds the chi router for the ops surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Post("/jobs/alert-scheduler/run", s.handleRunJob)

	return r
}

// handleHealthz is the liveness probe: the process is up and serving.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.build.Version,
		"commit":  s.build.Commit,
	})
}

// handleReadyz is the readiness probe: the database must answer a ping.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("readiness probe failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleRunJob triggers one scheduling pass immediately and returns its
// stats. Useful for debugging schedule configuration without waiting for
// the next tick.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	stats, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("manual job run failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
