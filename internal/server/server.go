// Package server exposes the kernel over a JSON operator API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/amaos/internal/scheduler"
	"github.com/me/amaos/internal/store"
	"github.com/me/amaos/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Kernel is the subset of kernel.Kernel the API drives.
type Kernel interface {
	Launch(ctx context.Context, name string, kind model.Kind) (model.Task, error)
	Terminate(ctx context.Context, pid int) (model.Task, error)
	Tasks() []model.Task
	Resources() model.Resources
	QueueLen() int
	QueueCap() int
	Live() map[model.Kind]int
}

// Server is the amaos REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	kernel    Kernel
	scheduler scheduler.Scheduler
	store     store.Store         // optional; nil when the journal is disabled
	gatherer  prometheus.Gatherer // optional; enables /metrics
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore serves the event journal from st.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a new Server with all routes registered.
// sched may be nil if no scheduling is desired (e.g. in tests).
func New(k Kernel, sched scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		kernel:    k,
		scheduler: sched,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// StartScheduler begins the scheduling loop in a background goroutine.
// Callers that run the loop themselves need not call it.
func (s *Server) StartScheduler(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	go func() {
		if err := s.scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduler stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) schedulerState() string {
	if s.scheduler == nil {
		return "disabled"
	}
	return s.scheduler.State()
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleLaunchTask)
			r.Delete("/{pid}", s.handleTerminateTask)
		})

		r.Get("/resources", s.handleResources)
		r.Get("/events", s.handleListEvents)
	})
}
