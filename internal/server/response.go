package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/orchestrator"
	"github.com/abhisek/quizforge/internal/queue"
)

var (
	errNotFound       = errors.New("not found")
	errInvalidRequest = errors.New("invalid request")
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

// classify maps an error to its HTTP status and machine-readable code.
func classify(err error) (int, string) {
	var verr *orchestrator.ValidationError
	switch {
	case errors.Is(err, orchestrator.ErrEmptyBatch):
		return http.StatusBadRequest, "empty_batch"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, orchestrator.ErrUnknownTarget):
		return http.StatusNotFound, "unknown_target"
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, events.ErrDuplicateSession):
		return http.StatusConflict, "duplicate_session"
	case errors.Is(err, queue.ErrNotScheduled):
		return http.StatusBadRequest, "not_scheduled"
	case errors.Is(err, queue.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= 500 {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}
