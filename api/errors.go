package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/summary"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func statusForError(err error) (int, errorResponse) {
	if verr, ok := domain.AsValidation(err); ok {
		return http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field}
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrInvariant):
		return http.StatusUnprocessableEntity, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: err.Error()}
	case errors.Is(err, summary.ErrUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "summary unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
}

// writeError maps err onto a JSON error response and records stage on the
// request metrics.
func writeError(c echo.Context, logger *log.Logger, stage string, err error) error {
	status, body := statusForError(err)
	if m := metricsFrom(c); m != nil {
		m.SetError(stage, err)
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.WithFields(log.Fields{
			"route": c.Path(),
			"stage": stage,
		}).WithError(err).Error("request failed")
	}
	return c.JSON(status, body)
}
