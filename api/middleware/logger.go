package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/grabber-go/pkg/logger"
	"go.uber.org/zap"
)

// Logger returns a gin middleware for logging. Error responses are also
// written to the error log when ml is set.
func Logger(log *zap.Logger, ml *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		log.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("client_ip", clientIP),
		)

		if ml != nil && statusCode >= 500 {
			ml.LogAppError("HTTP error response",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", statusCode),
				zap.String("client_ip", clientIP),
			)
		}
	}
}
