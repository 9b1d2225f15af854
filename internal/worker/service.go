// Package worker provides the HTTP and gRPC surface of orion: clustering job
// submission and polling, layout views and the job event stream.
package worker

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/orion/internal/config"
	"github.com/thebtf/orion/internal/orchestrator"
	"github.com/thebtf/orion/internal/visualize"
	"github.com/thebtf/orion/internal/worker/sse"
	"github.com/thebtf/orion/pkg/models"
)

// JobReader reads job records for polling.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, projectID string, limit int) ([]*models.Job, error)
}

// JobSubmitter starts clustering jobs in the background.
type JobSubmitter interface {
	Submit(ctx context.Context, projectID string, params orchestrator.Params) (*models.Job, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping() error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Jobs        JobReader
	Runner      JobSubmitter
	Views       *visualize.Service
	Broadcaster *sse.Broadcaster
	DB          Pinger
}

// Service is the worker HTTP service.
type Service struct {
	startTime      time.Time
	config         *config.Config
	jobs           JobReader
	runner         JobSubmitter
	views          *visualize.Service
	sseBroadcaster *sse.Broadcaster
	db             Pinger
	router         chi.Router
	version        string
	ready          atomic.Bool
}

// NewService creates the service and its routes. It starts not ready; call
// SetReady once dependencies are up.
func NewService(version string, cfg *config.Config, deps Deps) *Service {
	if deps.Broadcaster == nil {
		deps.Broadcaster = sse.NewBroadcaster()
	}
	svc := &Service{
		version:        version,
		config:         cfg,
		jobs:           deps.Jobs,
		runner:         deps.Runner,
		views:          deps.Views,
		sseBroadcaster: deps.Broadcaster,
		db:             deps.DB,
		router:         chi.NewRouter(),
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Handler returns the root HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Broadcaster returns the job event broadcaster.
func (s *Service) Broadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// SetReady marks the service as ready (or not) to serve API requests.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports readiness.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/version", s.handleVersion)
	r.Get("/api/events", s.sseBroadcaster.HandleSSE)

	r.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Get("/api/jobs/{jobID}", s.handleGetJob)
		r.Route("/api/projects/{projectID}", func(r chi.Router) {
			r.Post("/clustering", s.handleSubmitClustering)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/{view}", s.handleView)
		})
	})
}

// requireReady rejects API requests until the service is ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
