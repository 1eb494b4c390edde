// Package api exposes the HTTP control surface for the translation
// service: task submission, status and result queries, lifecycle
// actions, story lookups and health endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/engine"
	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/metrics"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
	"github.com/taleweave/fable/pkg/uploads"
)

// WorkerDirectory lists the live workers known to the store. It is the
// narrow slice of the worker registry the API needs.
type WorkerDirectory interface {
	List(ctx context.Context) ([]types.WorkerInfo, error)
}

// Deps collects the collaborators the server operates on. Store, Repo,
// Dispatcher and Results are required; Uploads is required for the
// create and upload endpoints; Workers and System back the health
// endpoints.
type Deps struct {
	Store      store.Store
	Repo       *repository.TaskRepository
	Dispatcher *dispatch.Dispatcher
	Results    *results.ResultStore
	Uploads    *uploads.Manager
	Workers    WorkerDirectory
	System     engine.Metrics
	Version    string
}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	deps     Deps
	validate *validator.Validate
	logger   zerolog.Logger
	httpSrv  *http.Server
}

// NewServer builds a server around the given dependencies. Routes are
// wired immediately; nothing listens until Start.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
		logger:   log.WithComponent("api"),
	}
	s.httpSrv = &http.Server{
		Handler: s.routes(),
		// Header read is bounded tightly; the write timeout leaves room
		// for large multipart bodies, which ReadTimeout would cut off.
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start listens on addr and serves until Shutdown. It blocks, like
// http.ListenAndServe, and returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("API server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(processTime)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", s.handleRoot)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks", s.handleListTasks)
		r.Post("/upload", s.handleCreateTask)

		r.Get("/tasks/statistics/summary", s.handleStatistics)
		r.Route("/tasks/{taskID}", func(r chi.Router) {
			r.Get("/", s.handleGetTask)
			r.Get("/results", s.handleGetResults)
			r.Post("/cancel", s.handleCancelTask)
			r.Post("/retry", s.handleRetryTask)
		})

		r.Get("/story/{name}/text", s.handleStoryText)

		r.Route("/health", func(r chi.Router) {
			r.Get("/", s.handleHealth)
			r.Get("/workers", s.handleWorkers)
			r.Get("/metrics", s.handleMetricsSummary)
			r.Get("/store", s.handleStoreHealth)
			r.Get("/system", s.handleSystemInfo)
		})
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{
		"service": "fable",
		"version": s.deps.Version,
		"status":  "running",
	})
}

// respond writes v as the JSON body with the given status code.
func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes the error envelope. detail is a human-readable
// message; internals (stack traces, wrapped causes) never leave the
// process through this path.
func (s *Server) respondError(w http.ResponseWriter, code int, detail string) {
	s.respond(w, code, map[string]string{"detail": detail})
}
