package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"chat-gateway/internal/cache"
	"chat-gateway/internal/config"
	"chat-gateway/internal/database"
	"chat-gateway/internal/handler"
	"chat-gateway/internal/llm"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/router"
	"chat-gateway/internal/service"
	"chat-gateway/internal/storage"
	"chat-gateway/internal/websocket"
	"chat-gateway/pkg/jwt"
)

// runServe 加载配置、初始化依赖并启动 HTTP 服务，收到信号后优雅关闭
func runServe(configPath string) error {
	// 加载配置
	cfg, loader, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, level, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 配置文件变化时只热更新日志级别，其余配置需要重启
	loader.Watch(func(next *config.Config) {
		newLevel := logger.ParseLevel(next.Log.Level)
		if newLevel != level.Level() {
			level.SetLevel(newLevel)
			log.Info("日志级别已更新", zap.String("level", newLevel.String()))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Open(cfg, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// 初始化 Redis，关闭时缓存和限流退回进程内实现
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(cfg)
		if err != nil {
			return err
		}
		defer redisCache.Close()
	}

	// 对象存储
	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// 模型 Provider
	provider, err := llm.New(llm.Config{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		RequestTimeout:    cfg.LLM.RequestTimeout,
		StreamIdleTimeout: cfg.LLM.StreamIdleTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	var jwtService *jwt.JWTService
	if cfg.Auth.Enabled {
		if len(cfg.Auth.JWTSecret) < 32 {
			return errors.New("auth.jwt_secret must be at least 32 characters")
		}
		jwtService = jwt.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessExpire)
	}

	h, hub := buildHandlers(cfg, log, db, redisCache, blobs, provider, jwtService)
	go hub.Run(ctx)

	opts := router.Options{JWT: jwtService}
	if redisCache != nil {
		opts.Blacklist = redisCache
		opts.Counter = redisCache
	}
	engine := router.New(cfg, log, h, opts)

	// 创建 HTTP 服务器
	// 流式响应不能设置 WriteTimeout
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("服务启动",
			zap.String("addr", server.Addr),
			zap.String("provider", provider.Name()),
			zap.String("model", cfg.LLM.Model),
			zap.String("database", cfg.Database.Driver),
			zap.Bool("redis", redisCache != nil),
			zap.Bool("auth", cfg.Auth.Enabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服务关闭超时", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("服务已退出")
	return nil
}

// buildHandlers 初始化 Repository、Service 和 Handler 层
func buildHandlers(
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	redisCache *cache.RedisCache,
	blobs storage.BlobStore,
	provider llm.Provider,
	jwtService *jwt.JWTService,
) (router.Handlers, *websocket.Hub) {
	// Repository 层
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	fileRepo := repository.NewFileRepository(db)

	// 接口类型的依赖，Redis 未启用时保持 nil
	var (
		messageCache service.MessageCache
		blacklist    service.TokenBlacklist
		wsBlacklist  middleware.TokenBlacklist
	)
	// 删除会话和 CSV 分析需要共用同一份图表存储
	var plotStore service.PlotStore = service.NewMemoryPlotStore()
	checks := map[string]handler.Checker{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if redisCache != nil {
		messageCache = redisCache
		plotStore = redisCache
		blacklist = redisCache
		wsBlacklist = redisCache
		checks["redis"] = redisCache.Ping
	}

	// Service 层
	sessionService := service.NewSessionService(sessionRepo, messageRepo, fileRepo, messageCache, plotStore, blobs, log)
	chatService := service.NewChatService(sessionRepo, messageRepo, fileRepo, messageCache, service.ChatServiceOptions{
		Blobs:          blobs,
		BlobPrefix:     cfg.Storage.S3.Prefix,
		MaxUploadBytes: cfg.CSV.MaxUploadBytes,
		InlineMaxBytes: cfg.CSV.InlineMaxBytes,
		InlineMaxRows:  cfg.CSV.InlineMaxRows,
	}, log)
	aiService := service.NewAIService(provider, cfg, plotStore, log)
	authService := service.NewAuthService(cfg.Auth, jwtService, blacklist, log)

	// WebSocket Hub
	hub := websocket.NewHub(aiService, log)

	return router.Handlers{
		Health:    handler.NewHealthHandler(checks, log),
		Auth:      handler.NewAuthHandler(authService, log),
		Session:   handler.NewSessionHandler(sessionService, log),
		Message:   handler.NewMessageHandler(chatService, aiService, log),
		AI:        handler.NewAIHandler(aiService, log),
		WebSocket: websocket.NewHandler(hub, jwtService, wsBlacklist, cfg.Server.CORS, log),
	}, hub
}
