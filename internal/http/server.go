// Package http provides the HTTP API for contextcore.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	"github.com/fyrsmithlabs/contextcore/internal/logging"
)

// Server provides HTTP endpoints for contextcore.
type Server struct {
	echo    *echo.Echo
	svc     devlog.Service
	logger  *logging.Logger
	config  *Config
	metrics *requestMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MetricsHandler is served on GET /metrics when set.
	MetricsHandler http.Handler
}

// NewServer creates a new HTTP server.
func NewServer(svc devlog.Service, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	metrics, err := newRequestMetrics()
	if err != nil {
		logger.Warn(context.Background(), "some HTTP metrics are disabled", zap.Error(err))
	}

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger.Named("http"),
		config:  cfg,
		metrics: metrics,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.contextMiddleware)
	e.Use(s.metrics.middleware())
	e.Use(s.requestLogger)

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.MetricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.config.MetricsHandler))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/logs", s.handleAddLog)
	v1.GET("/logs", s.handleListLogs)
	v1.GET("/logs/:id", s.handleGetLog)
	v1.DELETE("/logs/:id", s.handleDeleteLog)
	v1.POST("/logs/:id/reindex", s.handleReindex)
	v1.POST("/search", s.handleSearch)
	v1.GET("/context", s.handleContext)
}

// contextMiddleware carries the request id and transport into the request
// context so service spans and logs can be correlated.
func (s *Server) contextMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logging.WithTransport(req.Context(), "http")
		ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Write the error response before reading the status.
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	if err := s.echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
