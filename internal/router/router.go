// Package router 注册网关的所有 HTTP 路由
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/internal/config"
	"chat-gateway/internal/handler"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/websocket"
	"chat-gateway/pkg/jwt"
)

// Handlers 路由需要的处理器
type Handlers struct {
	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Session   *handler.SessionHandler
	Message   *handler.MessageHandler
	AI        *handler.AIHandler
	WebSocket *websocket.Handler // 可以为 nil
}

// Options 中间件依赖
type Options struct {
	JWT       *jwt.JWTService           // auth.enabled 为 false 时可以为 nil
	Blacklist middleware.TokenBlacklist // 可以为 nil
	Counter   middleware.RequestCounter // 为 nil 时使用进程内限流
}

// New 创建 Gin 引擎并注册路由
func New(cfg *config.Config, log *zap.Logger, h Handlers, opts Options) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORSMiddleware(middleware.CORSFromOrigins(cfg.Server.CORS)))

	r.GET("/", h.Health.Root)
	r.GET("/health", h.Health.Health)

	v1 := r.Group("/api/v1")

	var auth gin.HandlerFunc
	if cfg.Auth.Enabled && opts.JWT != nil {
		auth = middleware.AuthMiddleware(opts.JWT, opts.Blacklist)
	}

	// 认证相关
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/token", h.Auth.IssueToken)
		if auth != nil {
			authGroup.POST("/logout", auth, h.Auth.Logout)
		} else {
			authGroup.POST("/logout", h.Auth.Logout)
		}
	}

	api := v1.Group("")
	if auth != nil {
		api.Use(auth)
	}

	// 模型对话，单独限流
	ai := api.Group("/ai")
	if cfg.RateLimit.Enabled {
		ai.Use(middleware.RateLimitMiddleware(opts.Counter, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log))
	}
	{
		ai.POST("/chat", h.AI.Chat)
		ai.POST("/chat/image", h.AI.ImageChat)
		ai.POST("/chat/csv", h.AI.CSVChat)
	}

	// 会话、消息、文件
	sessions := api.Group("/sessions")
	{
		sessions.GET("", h.Session.ListSessions)
		sessions.POST("", h.Session.CreateSession)
		sessions.GET("/:id", h.Session.GetSession)
		sessions.DELETE("/:id", h.Session.DeleteSession)
		sessions.GET("/:id/messages", h.Message.GetMessages)
		sessions.POST("/:id/messages", h.Message.AddMessage)
		sessions.POST("/:id/files", h.Message.SaveFile)
		sessions.GET("/:id/files/:file_type", h.Message.GetFile)
		sessions.DELETE("/:id/files/:file_type", h.Message.DeleteFile)
		sessions.GET("/:id/plots", h.Message.GetPlots)
	}

	// WebSocket 路由
	if h.WebSocket != nil {
		h.WebSocket.RegisterRoutes(r)
	}

	return r
}
