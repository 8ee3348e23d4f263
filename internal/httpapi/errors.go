package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guilherme-santos/notifcal/internal"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, internal.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, internal.ErrIDCollision):
		return http.StatusConflict, "id_collision"
	case errors.Is(err, internal.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, internal.ErrInvalidCursor):
		return http.StatusBadRequest, "invalid_cursor"
	case errors.Is(err, internal.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, internal.ErrExtractionFailed):
		return http.StatusUnprocessableEntity, "extraction_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: msg})
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", internal.ErrInvalidInput, err)
}
