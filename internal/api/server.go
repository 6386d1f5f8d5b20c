// Package api exposes the HTTP surface of the anderson agent: recording
// intake, evaluation lookup, human review submission, bulk imports and
// the status endpoints the swarm dashboard polls.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/audit"
	"github.com/MikeSquared-Agency/anderson/internal/batch"
	"github.com/MikeSquared-Agency/anderson/internal/events"
	"github.com/MikeSquared-Agency/anderson/internal/pipeline"
	"github.com/MikeSquared-Agency/anderson/internal/policy"
)

// Storage is the slice of the database the handlers need.
type Storage interface {
	CreateRecording(ctx context.Context, rec *pipeline.Recording) error
	LoadRecording(ctx context.Context, id uuid.UUID) (*pipeline.Recording, error)
	LoadEvaluation(ctx context.Context, recordingID uuid.UUID) (*policy.Evaluation, error)
	CreateTemplate(ctx context.Context, tpl *policy.Template) error
	LoadTemplate(ctx context.Context, id uuid.UUID) (*policy.Template, error)
	LoadImportJob(ctx context.Context, id uuid.UUID) (*batch.ImportJob, error)
}

// Config carries the static settings the server reports and enforces.
type Config struct {
	Port        int
	APIToken    string
	Transcriber string
	Evaluator   string
}

type Server struct {
	router *chi.Mux
	cfg    Config
	db     Storage
	ctrl   *pipeline.Controller
	disp   *pipeline.Dispatcher
	orch   *batch.Orchestrator
	audit  *audit.Logger
	events *events.Client
	logger *slog.Logger
}

func NewServer(cfg Config, db Storage, ctrl *pipeline.Controller, disp *pipeline.Dispatcher, orch *batch.Orchestrator, aud *audit.Logger, ev *events.Client, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		db:     db,
		ctrl:   ctrl,
		disp:   disp,
		orch:   orch,
		audit:  aud,
		events: ev,
		logger: logger,
	}

	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/v1/anderson/status", s.handleStatus)
	s.router.Get("/api/v1/recordings/{id}", s.handleGetRecording)
	s.router.Get("/api/v1/recordings/{id}/evaluation", s.handleGetEvaluation)
	s.router.Get("/api/v1/imports/{id}", s.handleGetImportJob)
	s.router.Get("/api/v1/templates/{id}", s.handleGetTemplate)

	s.router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(cfg.APIToken))
		r.Post("/api/v1/recordings", s.handleCreateRecording)
		r.Post("/api/v1/recordings/reprocess", s.handleReprocess)
		r.Post("/api/v1/reviews/{id}", s.handleSubmitReview)
		r.Post("/api/v1/imports", s.handleCreateImport)
		r.Post("/api/v1/templates", s.handleCreateTemplate)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("api server listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests that do not carry the expected
// bearer token. An empty token leaves the routes open, which is only
// acceptable for local development.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"agent":  "anderson",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":          "anderson",
		"status":         "active",
		"queue_depth":    s.disp.QueueDepth(),
		"transcriber":    s.cfg.Transcriber,
		"evaluator":      s.cfg.Evaluator,
		"nats_connected": s.events.Connected(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
