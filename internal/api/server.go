// Package api exposes the orchestrator's query and control surface over
// HTTP. It is a thin translation layer: every handler delegates to the
// orchestrator's read-only views or control operations.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth/v5"

	"github.com/cmatc13/conductor/pkg/config"
	"github.com/cmatc13/conductor/pkg/health"
	"github.com/cmatc13/conductor/pkg/logging"
	"github.com/cmatc13/conductor/pkg/metrics"
	"github.com/cmatc13/conductor/pkg/service"
)

// Server serves the orchestrator's status and control endpoints.
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	orch      *service.Orchestrator
	tokenAuth *jwtauth.JWTAuth
	server    *http.Server
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewServer creates a new API server around the orchestrator.
func NewServer(cfg *config.Config, orch *service.Orchestrator, logger *logging.Logger, m *metrics.Metrics) *Server {
	r := chi.NewRouter()

	var tokenAuth *jwtauth.JWTAuth
	if cfg.API.JWTSecret != "" {
		tokenAuth = jwtauth.New("HS256", []byte(cfg.API.JWTSecret), nil)
	}

	s := &Server{
		cfg:       cfg,
		router:    r,
		orch:      orch,
		tokenAuth: tokenAuth,
		logger:    logger,
		metrics:   m,
		server: &http.Server{
			Addr:    ":" + cfg.API.Port,
			Handler: r,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.API.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Use(httprate.LimitByIP(s.cfg.API.RateLimit, time.Minute))

	s.router.Use(LoggingMiddleware(s.logger))
	if s.metrics != nil {
		s.router.Use(MetricsMiddleware(s.metrics))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method("GET", "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/services", s.handleDiscover)
		r.Get("/services/{name}", s.handleService)
		r.Get("/services/{name}/dependencies", s.handleDependencies)
		r.Get("/services/{name}/dependents", s.handleDependents)
		r.Get("/events", s.handleEvents)
		r.Get("/overview", s.handleOverview)

		// Control operations require a token when a secret is configured.
		r.Group(func(r chi.Router) {
			if s.tokenAuth != nil {
				r.Use(jwtauth.Verifier(s.tokenAuth))
				r.Use(jwtauth.Authenticator(s.tokenAuth))
			}
			r.Post("/services/{name}/restart", s.handleRestart)
			r.Post("/initialize", s.handleInitialize)
			r.Post("/shutdown", s.handleShutdown)
		})
	})
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	go func() {
		s.logger.Info("http server listening", "addr", s.server.Addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// HealthCheck verifies the listener accepts connections.
func (s *Server) HealthCheck(ctx context.Context) error {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", "localhost:"+s.cfg.API.Port)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Router exposes the mux, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := s.orch.AggregatedHealth()

	code := http.StatusOK
	if summary.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	s.respond(w, code, struct {
		Status    health.Status            `json:"status"`
		Timestamp time.Time                `json:"timestamp"`
		Summary   health.Summary           `json:"summary"`
		Services  map[string]health.Record `json:"services"`
	}{
		Status:    summary.Status,
		Timestamp: time.Now(),
		Summary:   summary,
		Services:  s.orch.HealthSnapshot(),
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.orch.Discover())
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, ok := s.orch.Info(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "service not found")
		return
	}

	rec, _ := s.orch.Health(name)
	s.respond(w, http.StatusOK, struct {
		service.Info
		Health health.Record `json:"health"`
	}{Info: info, Health: rec})
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.orch.Info(name); !ok {
		s.respondError(w, http.StatusNotFound, "service not found")
		return
	}
	s.respond(w, http.StatusOK, s.orch.Dependencies(name))
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.orch.Info(name); !ok {
		s.respondError(w, http.StatusNotFound, "service not found")
		return
	}
	s.respond(w, http.StatusOK, s.orch.Dependents(name))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.orch.Events())
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.orch.Overview())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.orch.RestartOne(r.Context(), name); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "restarted", "service": name})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.InitializeAll(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "initialized"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ShutdownAll(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "shutdown"})
}

func (s *Server) respond(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}
