// Package http exposes the publishing engine over a JSON REST API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/orchestrator"
	"github.com/fyrsmithlabs/contentd/internal/review"
	"github.com/fyrsmithlabs/contentd/internal/scheduling"
	"github.com/fyrsmithlabs/contentd/internal/telemetry"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RateLimit is the sustained publish requests per second allowed per
	// actor. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Services are the engine components the API drives.
type Services struct {
	Repository   content.Repository
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduling.Strategy
	Review       *review.Strategy
	Telemetry    *telemetry.Telemetry
}

// Server provides HTTP endpoints for contentd.
type Server struct {
	echo    *echo.Echo
	svc     Services
	logger  *logging.Logger
	config  *Config
	limiter *actorLimiter
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc.Repository == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if svc.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8420,
		}
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	metrics := NewHTTPMetrics(svc.Telemetry.Meter(httpInstrumentationName), logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := logging.WithRequestID(c.Request().Context(),
				c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		limiter: newActorLimiter(cfg.RateLimit, cfg.Burst),
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.actorMiddleware)
	v1.POST("/content", s.handleCreateContent)
	v1.GET("/content/:id", s.handleGetContent)
	v1.POST("/content/:id/publish", s.handlePublish, s.rateLimit)
	v1.DELETE("/content/:id/schedule", s.handleCancelSchedule)

	v1.GET("/reviews/:id", s.handleGetReview)
	v1.POST("/reviews/:id/decisions", s.handleDecision, s.rateLimit)
	v1.POST("/reviews/:id/withdraw", s.handleWithdraw)

	v1.GET("/strategies", s.handleStrategies)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
