package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
	"go.uber.org/zap"
)

// ContextHandler exposes the host messages over HTTP
type ContextHandler struct {
	host   *app.Host
	logger *zap.Logger
}

// NewContextHandler creates a new context handler
func NewContextHandler(host *app.Host, logger *zap.Logger) *ContextHandler {
	return &ContextHandler{
		host:   host,
		logger: logger,
	}
}

// AttachPageRequest carries a page snapshot from the host
type AttachPageRequest struct {
	URL       string         `json:"url" binding:"required"`
	HTML      string         `json:"html"`
	Mutations []app.Mutation `json:"mutations,omitempty"`
}

// VisibilityRequest reports a visibility change of a context
type VisibilityRequest struct {
	Hidden bool `json:"hidden"`
}

// Dispatch handles POST /api/v1/messages
func (h *ContextHandler) Dispatch(c *gin.Context) {
	var msg app.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, msg, http.StatusOK)
}

// ReportMedia handles POST /api/v1/contexts/:id/media
func (h *ContextHandler) ReportMedia(c *gin.Context) {
	var candidate domain.MediaCandidate
	if err := c.ShouldBindJSON(&candidate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, app.Message{Action: app.MsgMediaDetected, ContextID: c.Param("id"), Data: &candidate}, http.StatusAccepted)
}

// GetDetectedMedia handles GET /api/v1/contexts/:id/media
func (h *ContextHandler) GetDetectedMedia(c *gin.Context) {
	h.dispatch(c, app.Message{Action: app.MsgGetDetectedMedia, ContextID: c.Param("id")}, http.StatusOK)
}

// GetMedia handles GET /api/v1/contexts/:id/scan
func (h *ContextHandler) GetMedia(c *gin.Context) {
	h.dispatch(c, app.Message{Action: app.MsgGetMedia, ContextID: c.Param("id")}, http.StatusOK)
}

// Rescan handles POST /api/v1/contexts/:id/rescan
func (h *ContextHandler) Rescan(c *gin.Context) {
	h.dispatch(c, app.Message{Action: app.MsgRescan, ContextID: c.Param("id")}, http.StatusOK)
}

// RemoveContext handles DELETE /api/v1/contexts/:id
func (h *ContextHandler) RemoveContext(c *gin.Context) {
	h.dispatch(c, app.Message{Action: app.MsgContextRemoved, ContextID: c.Param("id")}, http.StatusOK)
}

// ListContexts handles GET /api/v1/contexts
func (h *ContextHandler) ListContexts(c *gin.Context) {
	contexts := h.host.Contexts()
	c.JSON(http.StatusOK, gin.H{
		"contexts": contexts,
		"count":    len(contexts),
	})
}

// AttachPage handles POST /api/v1/contexts/:id/page
func (h *ContextHandler) AttachPage(c *gin.Context) {
	var req AttachPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := domain.Resolve(req.URL, ""); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page url must be an absolute http(s) address"})
		return
	}

	page, err := infrastructure.NewPageFromHTML(req.URL, strings.NewReader(req.HTML))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contextID := c.Param("id")
	m, err := h.host.Attach(c.Request.Context(), contextID, page, req.Mutations)
	if err != nil {
		h.logger.Error("Failed to attach page", zap.String("context_id", contextID), zap.Error(err))
		abortWithError(c, err)
		return
	}

	pageURL, pageTitle := m.PageInfo()
	c.JSON(http.StatusOK, app.Response{
		Status:        app.StatusUpdated,
		DetectedCount: h.host.Aggregator().Count(contextID),
		PageURL:       pageURL,
		PageTitle:     pageTitle,
	})
}

// Visibility handles POST /api/v1/contexts/:id/visibility
func (h *ContextHandler) Visibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, ok := h.host.Monitor(c.Param("id"))
	if !ok {
		abortWithError(c, app.ErrUnknownContext)
		return
	}
	if err := m.VisibilityChanged(c.Request.Context(), req.Hidden); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.Response{Status: app.StatusReceived})
}

func (h *ContextHandler) dispatch(c *gin.Context, msg app.Message, okStatus int) {
	resp, err := h.host.Dispatch(c.Request.Context(), msg)
	if err != nil {
		h.logger.Debug("Message rejected",
			zap.String("action", string(msg.Action)),
			zap.String("context_id", msg.ContextID),
			zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(okStatus, resp)
}
