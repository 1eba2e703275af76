package server

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/autograde/internal/config"
	"github.com/me/autograde/internal/grader"
	"github.com/me/autograde/internal/grading"
	"github.com/me/autograde/internal/observer"
	"github.com/me/autograde/internal/scheduler"
	"github.com/me/autograde/internal/store"
	"github.com/me/autograde/pkg/model"
)

// Server is the autograde REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	validate  *validator.Validate
	store     store.Store
	grading   *grading.Service
	scheduler scheduler.Scheduler // optional; /admin/scheduler
	observer  *observer.Observer  // optional; /admin/observer
	registry  *grader.Registry    // optional; executor load for deletes
	gatherer  prometheus.Gatherer // optional; /metrics
	now       func() time.Time
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithScheduler exposes scheduler stats on the admin API.
func WithScheduler(sched scheduler.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// WithObserver exposes the observer snapshot on the admin API.
func WithObserver(obs *observer.Observer) Option {
	return func(s *Server) {
		s.observer = obs
	}
}

// WithExecutorRegistry sets the registry used to check executor load.
func WithExecutorRegistry(reg *grader.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, svc *grading.Service, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		validate:  newValidator(),
		store:     st,
		grading:   svc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(identityMiddleware)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/exercises", func(r chi.Router) {
			r.With(requireRole(model.RoleTeacher, model.RoleAdmin)).Post("/", s.handleCreateExercise)
			r.Route("/{eid}", func(r chi.Router) {
				r.Get("/", s.handleGetExercise)
				r.With(requireRole(model.RoleTeacher, model.RoleAdmin)).Put("/grader", s.handleSetGrader)

				r.Route("/submissions", func(r chi.Router) {
					r.Use(requireRole(model.RoleStudent))
					r.Post("/", s.handleSubmit)
					r.Get("/", s.handleListOwnSubmissions)
					r.Get("/latest", s.handleLatest)
					r.Get("/latest/await", s.handleAwaitLatest)
					r.Get("/latest/autograded", s.handlePollLatest)
				})

				r.Post("/anonymous/autoassess", s.handleAnonymousAutoassess)
				r.With(requireRole(model.RoleTeacher, model.RoleAdmin)).Get("/anonymous", s.handleListAnonymous)
			})
		})

		r.Route("/submissions/{sid}", func(r chi.Router) {
			r.Use(requireRole(model.RoleTeacher, model.RoleAdmin))
			r.Get("/", s.handleGetSubmission)
			r.Post("/autoassess/retry", s.handleRetry)
			r.Post("/grade", s.handlePostGrade)
			r.Post("/feedback", s.handlePostFeedback)
			r.Get("/activities", s.handleListActivities)
			r.Put("/activities/{aid}/feedback", s.handleEditFeedback)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.RoleAdmin))
			r.Route("/executors", func(r chi.Router) {
				r.Get("/", s.handleListExecutors)
				r.Post("/", s.handleCreateExecutor)
				r.Put("/{xid}/drain", s.handleDrainExecutor)
				r.Delete("/{xid}", s.handleDeleteExecutor)
			})
			r.Put("/auto-exercises/{aid}/executors/{xid}", s.handleLinkExecutor)
			r.Get("/admin/observer", s.handleObserverSnapshot)
			r.Get("/admin/scheduler", s.handleSchedulerStats)
		})
	})
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
