package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusForKind maps an error kind to an HTTP status code.
func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "embedding_provider", "vector_index":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// kindForStatus names echo's own errors (bad JSON, unknown route).
func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// handleError renders err as an ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorResponse
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		body = ErrorResponse{Error: kindForStatus(status), Message: fmt.Sprint(he.Message)}
	} else {
		kind := devlog.Kind(err)
		status = statusForKind(kind)
		body = ErrorResponse{Error: kind, Message: err.Error()}
	}

	ctx := c.Request().Context()
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", zap.String("kind", body.Error), zap.Error(err))
		if status == http.StatusInternalServerError {
			// Internal details stay in the log.
			body.Message = "internal server error"
		}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		s.logger.Warn(ctx, "failed to write error response", zap.Error(writeErr))
	}
}
