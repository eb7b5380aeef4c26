package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type errorBody struct {
	Error string `json:"error"`
}

type validationBody struct {
	Error   string            `json:"error"`
	Details []ValidationError `json:"details"`
}

// errorHandler renders every unhandled error as {"error": "..."}. Internal
// details are logged, never returned.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		} else {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled handler error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, errorBody{Error: msg})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
