package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
	"go.uber.org/zap"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	jobs           *app.JobService
	cookies        infrastructure.CookieSource
	defaultBitrate int
	logger         *zap.Logger
}

// NewJobHandler creates a new job handler. cookies, when non-nil, supplies
// the cookie file for submissions that carry none.
func NewJobHandler(jobs *app.JobService, cookies infrastructure.CookieSource, defaultBitrate int, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		jobs:           jobs,
		cookies:        cookies,
		defaultBitrate: defaultBitrate,
		logger:         logger,
	}
}

// SubmitJobRequest represents a request to submit a download job
type SubmitJobRequest struct {
	URL           string `json:"url" binding:"required"`
	Kind          string `json:"kind,omitempty" binding:"omitempty,oneof=video audio"`
	MaxHeight     int    `json:"max_height,omitempty" binding:"omitempty,min=0"`
	AudioBitrate  int    `json:"audio_bitrate,omitempty" binding:"omitempty,min=0,max=512"`
	CustomCookies string `json:"custom_cookies,omitempty"`
}

// JobResponse is the current state of the active job
type JobResponse struct {
	Handle    domain.JobHandle `json:"handle"`
	Indicator app.Indicator    `json:"indicator,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	var body SubmitJobRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bitrate := body.AudioBitrate
	if bitrate <= 0 {
		bitrate = h.defaultBitrate
	}
	cookies := strings.TrimSpace(body.CustomCookies)
	if cookies == "" && h.cookies != nil {
		if text, ok := infrastructure.ExportNetscape(body.URL, h.cookies); ok {
			cookies = text
		}
	}

	req, err := domain.NewDownloadRequest(body.URL, domain.DownloadKind(body.Kind), body.MaxHeight, bitrate, cookies)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	handle, err := h.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("Failed to submit job", zap.String("url", req.URL), zap.Error(err))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, JobResponse{Handle: handle, Indicator: app.IndicatorSubmitted, Message: "Download in progress..."})
}

// Current handles GET /api/v1/jobs/current
func (h *JobHandler) Current(c *gin.Context) {
	last := h.jobs.Session().LastUpdate()
	c.JSON(http.StatusOK, JobResponse{
		Handle:    last.Handle,
		Indicator: last.Indicator,
		Message:   last.Message,
	})
}

// Cancel handles DELETE /api/v1/jobs/current
func (h *JobHandler) Cancel(c *gin.Context) {
	handle := h.jobs.Cancel()
	h.logger.Info("Job cancelled", zap.String("job_id", handle.JobID))
	c.JSON(http.StatusOK, JobResponse{Handle: handle, Message: "cancelled"})
}

// History handles GET /api/v1/jobs
func (h *JobHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		limit = 50
	}

	records, err := h.jobs.History(limit)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	stats, err := h.jobs.Stats()
	if err != nil {
		h.logger.Error("Failed to get job stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  records,
		"count": len(records),
		"stats": stats,
	})
}
