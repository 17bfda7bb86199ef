package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/birdnet-scout/internal/api/handlers"
	mw "github.com/tphakala/birdnet-scout/internal/api/middleware"
	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/geolocation"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/observability"
	"github.com/tphakala/birdnet-scout/internal/observability/metrics"
)

// Server is the BirdNET-Scout HTTP server.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings

	store   handlers.Store
	locator *geolocation.Client
	queue   handlers.PendingCounter
	metrics *observability.Metrics

	controller *handlers.Controller
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLocator enables the IP geolocation refresh on GET /api/config.
func WithLocator(c *geolocation.Client) ServerOption {
	return func(s *Server) { s.locator = c }
}

// WithPendingCounter reports the analyzer backlog on /healthcheck.
func WithPendingCounter(q handlers.PendingCounter) ServerOption {
	return func(s *Server) { s.queue = q }
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates a server over store. Routes are registered immediately; the
// listener is opened by Run.
func New(settings *conf.Settings, store handlers.Store, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:   config,
		settings: settings,
		store:    store,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()

	var ctrlOpts []handlers.Option
	if s.locator != nil {
		ctrlOpts = append(ctrlOpts, handlers.WithLocator(s.locator))
	}
	if s.queue != nil {
		ctrlOpts = append(ctrlOpts, handlers.WithPendingCounter(s.queue))
	}
	if s.metrics != nil {
		ctrlOpts = append(ctrlOpts, handlers.WithMetrics(s.metrics))
	}
	s.controller = handlers.New(s.echo, store, settings, ctrlOpts...)

	GetLogger().Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Any("allowed_origins", config.AllowedOrigins))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(GetLogger()))
	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: s.config.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
	}))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))

	var httpMetrics *metrics.HTTPMetrics
	if s.metrics != nil {
		httpMetrics = s.metrics.HTTP
	}
	s.echo.Use(mw.NewMetrics(httpMetrics))
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Address()
	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("Starting HTTP server", logger.String("address", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		GetLogger().Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	GetLogger().Info("Server shutdown complete")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Controller returns the API controller.
func (s *Server) Controller() *handlers.Controller {
	return s.controller
}
