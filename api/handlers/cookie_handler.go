package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/grabber-go/internal/infrastructure"
	"go.uber.org/zap"
)

// CookieHandler feeds the server-side cookie jar used when a job is
// submitted without explicit cookies
type CookieHandler struct {
	store  *infrastructure.CookieStore
	logger *zap.Logger
}

// NewCookieHandler creates a new cookie handler
func NewCookieHandler(store *infrastructure.CookieStore, logger *zap.Logger) *CookieHandler {
	return &CookieHandler{
		store:  store,
		logger: logger,
	}
}

// AddCookiesRequest carries cookies as structured entries, Netscape text, or both
type AddCookiesRequest struct {
	Cookies  []infrastructure.Cookie `json:"cookies,omitempty"`
	Netscape string                  `json:"netscape,omitempty"`
}

// AddCookies handles POST /api/v1/contexts/:id/cookies
func (h *CookieHandler) AddCookies(c *gin.Context) {
	var req AddCookiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cookies := req.Cookies
	if strings.TrimSpace(req.Netscape) != "" {
		parsed, err := infrastructure.ParseNetscape(strings.NewReader(req.Netscape))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cookies = append(cookies, parsed...)
	}

	added := 0
	for _, ck := range cookies {
		if ck.Domain == "" || ck.Name == "" {
			continue
		}
		h.store.Add(ck)
		added++
	}

	h.logger.Debug("Cookies stored",
		zap.String("context_id", c.Param("id")),
		zap.Int("added", added),
		zap.Int("total", h.store.Len()))

	c.JSON(http.StatusOK, gin.H{"added": added, "total": h.store.Len()})
}
