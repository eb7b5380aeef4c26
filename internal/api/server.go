package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fee-tracker/internal/config"
)

// Server exposes the read-only query surface over HTTP.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	logger zerolog.Logger
}

// NewServer wires routes and middleware. Handlers only read from deps.
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error().Err(err).Bytes("stack", stack).Str("path", c.Request().URL.Path).Msg("panic recovered")
			return err
		},
	}))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: newRequestID}))
	e.Use(requestLogger(logger))
	e.Use(requestMetrics())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "X-API-Key"},
		ExposeHeaders: []string{
			echo.HeaderXRequestID,
			echo.HeaderRetryAfter,
			headerRateLimitLimit,
		},
		MaxAge: int(time.Hour / time.Second),
	}))
	if cfg.RateLimitRPS > 0 {
		e.Use(rateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	newHandler(deps).RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	return &Server{echo: e, cfg: cfg, logger: logger}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run binds the listener and serves until ctx is cancelled. A bind failure is
// returned immediately.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.echo.Listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
