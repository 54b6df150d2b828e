package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/grabber-go/api/handlers"
	"github.com/yourusername/grabber-go/api/middleware"
	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/infrastructure"
	"github.com/yourusername/grabber-go/pkg/logger"
	"go.uber.org/zap"
)

// RouterConfig bundles what the HTTP API serves
type RouterConfig struct {
	Host           *app.Host
	Jobs           *app.JobService
	Logger         *zap.Logger
	MultiLogger    *logger.MultiLogger // optional; enables /api/v1/logs
	Cookies        *infrastructure.CookieStore
	DefaultBitrate int
}

// SetupRouter sets up the HTTP router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cookies := cfg.Cookies
	if cookies == nil {
		cookies = infrastructure.NewCookieStore()
	}

	router := gin.New()

	router.Use(middleware.Logger(log, cfg.MultiLogger))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(cfg.Host, cfg.Jobs)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		contextHandler := handlers.NewContextHandler(cfg.Host, log)
		cookieHandler := handlers.NewCookieHandler(cookies, log)
		v1.POST("/messages", contextHandler.Dispatch)

		contexts := v1.Group("/contexts")
		{
			contexts.GET("", contextHandler.ListContexts)
			contexts.DELETE("/:id", contextHandler.RemoveContext)
			contexts.POST("/:id/page", contextHandler.AttachPage)
			contexts.POST("/:id/visibility", contextHandler.Visibility)
			contexts.GET("/:id/media", contextHandler.GetDetectedMedia)
			contexts.POST("/:id/media", contextHandler.ReportMedia)
			contexts.GET("/:id/scan", contextHandler.GetMedia)
			contexts.POST("/:id/rescan", contextHandler.Rescan)
			contexts.POST("/:id/cookies", cookieHandler.AddCookies)
		}

		jobHandler := handlers.NewJobHandler(cfg.Jobs, cookies, cfg.DefaultBitrate, log)
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.Submit)
			jobs.GET("", jobHandler.History)
			jobs.GET("/current", jobHandler.Current)
			jobs.DELETE("/current", jobHandler.Cancel)
		}

		if cfg.MultiLogger != nil {
			logHandler := handlers.NewLogHandler(cfg.MultiLogger.GetLogsDir())
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
