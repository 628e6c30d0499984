package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/opsagent/pkg/agent"
	"github.com/doodlesbykumbi/opsagent/pkg/config"
	"github.com/doodlesbykumbi/opsagent/pkg/metrics"
	"github.com/doodlesbykumbi/opsagent/pkg/server/middleware"
	"github.com/doodlesbykumbi/opsagent/pkg/server/store"
)

// Agent answers a query, consulting tools as needed
type Agent interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}

type Server struct {
	Router       *mux.Router
	Config       *config.Config
	Agent        Agent
	SessionStore store.SessionStore
	HealthStore  store.HealthStore
	Metrics      *metrics.Metrics
	Logger       *log.Logger

	// JWTMiddleware is nil when no signing secret is configured
	JWTMiddleware *middleware.JWTAuthenticator
	// RateLimit is nil when rate limiting is disabled
	RateLimit func(http.Handler) http.Handler

	srv *http.Server
}

func NewServer(
	cfg *config.Config,
	runner Agent,
	sessions store.SessionStore,
	health store.HealthStore,
	m *metrics.Metrics,
	logger *log.Logger,
) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}

	rateLimit, err := middleware.NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", cfg.RateLimit, err)
	}

	var jwtAuth *middleware.JWTAuthenticator
	if cfg.JWTSecret != "" {
		jwtAuth = middleware.NewJWTAuthenticator(cfg.JWTSecret)
	}

	router := mux.NewRouter()
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(panicLogger{logger}),
		handlers.PrintRecoveryStack(logger.GetLevel() == log.DebugLevel),
	)
	srv := &http.Server{
		Handler: handlers.CombinedLoggingHandler(os.Stdout, recovery(router)),
		Addr:    cfg.Addr(),
		// Agent runs may take several model round trips.
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		ReadTimeout:  15 * time.Second,
	}

	return &Server{
		Router:        router,
		Config:        cfg,
		Agent:         runner,
		SessionStore:  sessions,
		HealthStore:   health,
		Metrics:       m,
		Logger:        logger,
		JWTMiddleware: jwtAuth,
		RateLimit:     rateLimit,
		srv:           srv,
	}, nil
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Addr is the listen address
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Protect wraps h with the configured rate limiter and JWT authentication
func (s *Server) Protect(h http.Handler) http.Handler {
	if s.JWTMiddleware != nil {
		h = s.JWTMiddleware.Middleware(h)
	}
	if s.RateLimit != nil {
		h = s.RateLimit(h)
	}
	return h
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.Logger.Info("Listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithListener serves on an already bound listener until Shutdown is called
func (s *Server) StartWithListener(l net.Listener) error {
	s.Logger.Info("Listening", "addr", l.Addr().String())
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type panicLogger struct {
	logger *log.Logger
}

func (p panicLogger) Println(v ...interface{}) {
	p.logger.Error("Recovered from panic", "panic", fmt.Sprint(v...))
}
