package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/config"
	"jobportal/internal/events"
	"jobportal/internal/jobs"
	"jobportal/internal/storage"
	"jobportal/internal/uploads"
	"jobportal/internal/users"
)

// Deps 汇总路由所需的依赖。Redis 为 nil 时关闭登录限流。
type Deps struct {
	Users   *users.Store
	Jobs    *jobs.Store
	Uploads *uploads.Manager
	Images  storage.Backend
	Tokens  *auth.TokenService
	Hasher  *auth.Hasher
	Feed    *events.Feed
	Redis   *redis.Client
	Logger  *slog.Logger
	API     config.APIConfig
	Auth    config.AuthConfig
}

// RegisterRoutes 注册业务路由。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	var limiter *loginLimiter
	if deps.Redis != nil {
		limiter = newLoginLimiter(deps.Redis, deps.Auth.LoginRateLimitPerHour, deps.Auth.LoginLockThreshold, deps.Auth.LoginLockTTL)
	}

	userHandler := NewUserHandler(deps.Users, deps.Tokens, deps.Hasher, deps.Uploads, limiter, deps.Auth.AllowedEmailDomain)
	imageHandler := NewImageHandler(deps.Uploads, deps.Images)
	jobHandler := NewJobHandler(deps.Jobs)
	wsHandler := NewWsHandler(deps.Feed, deps.Tokens, deps.Logger, deps.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.Tokens)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Job portal API"})
	})
	router.GET("/images/*name", imageHandler.Serve)
	router.GET("/ws/jobs", wsHandler.HandleConnection)

	userGroup := router.Group("/user")
	{
		userGroup.POST("/create", userHandler.Create)
		userGroup.POST("/login", userHandler.Login)
		userGroup.PUT("/edit", authMiddleware, userHandler.Edit)
		userGroup.DELETE("/delete", authMiddleware, adminOnly, userHandler.Delete)
		userGroup.GET("/getAll", authMiddleware, adminOnly, userHandler.GetAll)
		userGroup.GET("", authMiddleware, adminOnly, userHandler.List)
		userGroup.GET("/showcase", userHandler.Showcase)

		userGroup.POST("/uploadImage", authMiddleware, imageHandler.Upload)
		userGroup.GET("/images/:email", imageHandler.List)
		userGroup.DELETE("/deleteImage", authMiddleware, imageHandler.Delete)
	}

	jobGroup := router.Group("/job")
	{
		if deps.API.JobCreateRequiresAdmin {
			jobGroup.POST("/create", authMiddleware, adminOnly, jobHandler.Create)
		} else {
			jobGroup.POST("/create", jobHandler.Create)
		}
		jobGroup.GET("", jobHandler.List)
		jobGroup.GET("/:id", jobHandler.Get)
	}
}
