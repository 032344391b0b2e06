// Package api exposes the simulator over HTTP: JSON snapshots, run control,
// playbook queries and a followable log.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/log"
	"github.com/aristath/playbooksim/internal/playbook"
	"github.com/aristath/playbooksim/internal/simulator"
)

// Controller is the simulator surface the API drives. *simulator.Simulator
// implements it.
type Controller interface {
	Start()
	Pause()
	Reset()
	Snapshot() simulator.Snapshot
	Timing() simulator.Timing
	Configure(simulator.Timing) error
	Subscribe(bufSize int) <-chan events.Event
	Unsubscribe(sub <-chan events.Event)
}

// ServerConfig is the configuration for the HTTP API server.
type ServerConfig struct {
	Addr       string
	AuthToken  string // Empty disables authentication
	Controller Controller
	Playbook   *playbook.Playbook
	Logger     log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Controller == nil {
		return errMissing("controller")
	}
	if c.Playbook == nil {
		return errMissing("playbook")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api"})
	return nil
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	ctrl       Controller
	playbook   *playbook.Playbook
	logger     log.Logger
	authToken  string

	// closing is closed on Shutdown so streaming handlers return.
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer constructs the HTTP API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	s := &Server{
		router:    router,
		ctrl:      cfg.Controller,
		playbook:  cfg.Playbook,
		logger:    cfg.Logger,
		authToken: cfg.AuthToken,
		closing:   make(chan struct{}),
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.logValues)
	router.Use(middleware.Recoverer)
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Followed logs stream indefinitely.
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Infof("http server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.httpServer.Shutdown(ctx)
}

// logValues puts the request ID on the context for WithCtxValues.
func (s *Server) logValues(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := s.logger.SetValuesOnCtx(r.Context(), log.Kv{
			"request-id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/start", s.handleStart)
		r.Post("/pause", s.handlePause)
		r.Post("/reset", s.handleReset)
		r.Get("/log", s.handleLog)

		r.Get("/timing", s.handleGetTiming)
		r.Put("/timing", s.handleUpdateTiming)

		r.Route("/playbook", func(r chi.Router) {
			r.Get("/", s.handleGetPlaybook)
			r.Get("/roles", s.handleRoles)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Get("/{taskID}", s.handleGetTask)
		})
	})
}
