package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fee-tracker/internal/metrics"
)

const headerRateLimitLimit = "X-RateLimit-Limit"

func newRequestID() string {
	return uuid.NewString()
}

// requestLogger writes one structured line per request. It resolves handler
// errors itself so the logged status matches what the client sees.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			event := logger.Info()
			switch {
			case res.Status >= http.StatusInternalServerError:
				event = logger.Error().Err(err)
			case res.Status >= http.StatusBadRequest:
				event = logger.Warn()
			}
			event.
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("bytes", res.Size).
				Dur("latency", time.Since(start)).
				Msg("http request")
			return nil
		}
	}
}

// requestMetrics records Prometheus counters keyed by the route template.
func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			metrics.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			metrics.HTTPDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// rateLimiter applies a per-client token bucket keyed by real IP.
func rateLimiter(rps float64, burst int) echo.MiddlewareFunc {
	if burst < 1 {
		burst = 1
	}
	limit := strconv.FormatFloat(rps, 'f', -1, 64)
	retryAfter := strconv.Itoa(int(max(1, 1/rps)))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(rps),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, errorBody{Error: "unable to identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set(headerRateLimitLimit, limit)
			c.Response().Header().Set(echo.HeaderRetryAfter, retryAfter)
			return c.JSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
		},
	})
}
