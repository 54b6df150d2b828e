package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 JSON response. The log entry
// names the route and, for context-scoped routes, the browsing context.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				fields := []zap.Field{
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("route", c.FullPath()),
					zap.String("client_ip", c.ClientIP()),
					zap.Stack("stack"),
				}
				if id := c.Param("id"); id != "" {
					fields = append(fields, zap.String("context_id", id))
				}
				log.Error("Panic recovered", fields...)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
