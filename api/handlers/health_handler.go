package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	host *app.Host
	jobs *app.JobService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(host *app.Host, jobs *app.JobService) *HealthHandler {
	return &HealthHandler{
		host: host,
		jobs: jobs,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	Contexts int             `json:"contexts"`
	Job      domain.JobState `json:"job"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:   "ok",
		Version:  Version,
		Contexts: len(h.host.Contexts()),
		Job:      h.jobs.Session().State(),
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	resp, err := h.host.Dispatch(c.Request.Context(), app.Message{Action: app.MsgPing})
	if err != nil || resp.Status != app.StatusAlive {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "host dispatcher not answering",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
