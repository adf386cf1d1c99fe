package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/publish"
)

// statusForKind maps publishing error kinds to HTTP statuses.
func statusForKind(k publish.Kind) int {
	switch k {
	case publish.KindValidation:
		return http.StatusUnprocessableEntity
	case publish.KindNoStrategy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every error as ErrorResponse. Publishing errors show
// only their user message; technical detail goes to the log.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()
		resp := ErrorResponse{RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
		status := http.StatusInternalServerError

		var (
			pe *publish.Error
			he *echo.HTTPError
		)
		switch {
		case errors.As(err, &pe):
			status = statusForKind(pe.Kind)
			resp.Error = pe.UserMessage()
			resp.Kind = pe.Kind.String()
			resp.Strategy = pe.Strategy
			if status >= http.StatusInternalServerError {
				logger.Error(ctx, "publishing request failed", zap.Error(err))
			} else {
				logger.Debug(ctx, "publishing request rejected", zap.Error(err))
			}
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				resp.Error = msg
			} else {
				resp.Error = http.StatusText(status)
			}
		case errors.Is(err, content.ErrNotFound):
			status = http.StatusNotFound
			resp.Error = "Content not found."
		default:
			logger.Error(ctx, "unhandled request error", zap.Error(err))
			resp.Error = publish.UserMessageOf(err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, resp)
		}
		if err != nil {
			logger.Warn(ctx, "failed to write error response", zap.Error(err))
		}
	}
}
