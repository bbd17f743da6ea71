package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"examforge/gatekeeper/pkg/api/handlers"
	"examforge/gatekeeper/pkg/api/middleware"
	"examforge/gatekeeper/pkg/config"
	"examforge/gatekeeper/pkg/limits"
	"examforge/gatekeeper/pkg/limits/ratelimit"
	"examforge/gatekeeper/pkg/telemetry/health"
	"examforge/gatekeeper/pkg/telemetry/metrics"
	"examforge/gatekeeper/pkg/telemetry/tracing"
)

// readinessTimeout bounds the store ping of the readiness probe.
const readinessTimeout = 2 * time.Second

// Options configures a Server.
type Options struct {
	// Config is the HTTP server configuration.
	Config config.ServerConfig

	// Metrics configures the /metrics endpoint.
	Metrics config.MetricsConfig

	// Engine serves the API. Required.
	Engine *limits.Engine

	// Gatherer is scraped by /metrics. Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	// Registerer receives the HTTP request metrics. Default: Gatherer when it
	// is also a Registerer, otherwise prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// TracerProvider creates request spans. Default: the global provider.
	TracerProvider trace.TracerProvider

	// Logger is the base logger. Default: slog.Default()
	Logger *slog.Logger
}

// Server is the sidecar HTTP server.
type Server struct {
	opts       Options
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server

	mu        sync.Mutex
	listener  net.Listener
	isRunning bool
}

// New creates a server. The router is built immediately.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Registerer == nil {
		if reg, ok := opts.Gatherer.(prometheus.Registerer); ok {
			opts.Registerer = reg
		} else {
			opts.Registerer = prometheus.DefaultRegisterer
		}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
	}
	s.handler = s.setupRoutes()
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.opts.Config.ReadTimeout,
		WriteTimeout:   s.opts.Config.WriteTimeout,
		IdleTimeout:    s.opts.Config.IdleTimeout,
		MaxHeaderBytes: s.opts.Config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"address", ln.Addr().String(),
			"throttle_api", s.opts.Config.ThrottleAPI,
			"metrics", s.opts.Metrics.Enabled,
		)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		return s.shutdown(httpServer)
	}
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) shutdown(httpServer *http.Server) error {
	timeout := s.opts.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RecoveryMiddleware(s.opts.Logger))
	r.Use(middleware.RequestIDMiddleware)
	r.Use(tracing.HTTPMiddleware(s.opts.TracerProvider))
	r.Use(metrics.NewHTTPMetrics(s.opts.Registerer).Middleware)
	r.Use(middleware.LoggingMiddleware(s.opts.Logger))

	checker := health.New(readinessTimeout)
	if s.opts.Engine != nil {
		checker.RegisterCheck("store", s.opts.Engine.Ping)
	}
	r.Get("/health", checker.LivenessHandler())
	r.Get("/ready", checker.ReadinessHandler())

	if s.opts.Metrics.Enabled {
		path := s.opts.Metrics.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		r.Handle(path, metrics.Handler(s.opts.Gatherer))
	}

	if s.opts.Engine != nil {
		api := handlers.New(s.opts.Engine, s.opts.Logger)
		r.Route("/v1", func(r chi.Router) {
			if s.opts.Config.ThrottleAPI {
				r.Use(middleware.PolicyMiddleware(s.opts.Engine, ratelimit.API.Name))
			}
			api.Routes(r)
		})
	}

	return r
}
