package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
)

// statusFor maps core errors onto HTTP status codes
func statusFor(err error) int {
	var subErr *domain.SubmissionError
	switch {
	case errors.Is(err, app.ErrUnknownMessage), errors.Is(err, app.ErrMissingContext):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrUnknownContext):
		return http.StatusNotFound
	case errors.Is(err, app.ErrMonitorNotRunning), errors.Is(err, app.ErrMonitorStopped),
		errors.Is(err, domain.ErrSuperseded), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingJobID):
		return http.StatusBadGateway
	case errors.As(err, &subErr):
		if subErr.StatusCode >= 400 && subErr.StatusCode < 500 {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
