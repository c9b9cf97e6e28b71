package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobportal/internal/api/middleware"
	"jobportal/internal/config"
	"jobportal/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，注册通用中间件、健康检查与 /metrics。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			logger.Error("panic recovered",
				slog.String("path", c.Request.URL.Path),
				slog.Any("panic", recovered),
			)
			Internal(c)
			c.Abort()
		}),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware("/metrics", "/health"),
		middleware.CORSMiddleware(cfg.API.AllowedOrigins),
		middleware.NoCacheMiddleware(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metricsHandler := gin.WrapH(promhttp.Handler())
	if cfg.Metrics.Secret != "" {
		router.GET("/metrics", middleware.InternalSecretMiddleware(cfg.Metrics.Secret), metricsHandler)
	} else {
		router.GET("/metrics", metricsHandler)
	}

	return router
}
