package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chat-gateway/internal/cache"
	"chat-gateway/internal/config"
	"chat-gateway/internal/database"
	"chat-gateway/internal/llm/llmtest"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/service"
	"chat-gateway/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	fake   *llmtest.Fake
	redis  *miniredis.Miniredis
	cache  *cache.RedisCache
}

func newTestServer(t *testing.T, fake *llmtest.Fake) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { sqlDB.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	rc := cache.New(client, time.Minute, time.Hour)

	log := zap.NewNop()
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	fileRepo := repository.NewFileRepository(db)
	blobs := storage.NewMemoryStore()

	cfg := &config.Config{
		LLM:   config.LLMConfig{Model: "test-model"},
		CSV:   config.CSVConfig{MaxIterations: 2, SampleRows: 3},
		Image: config.ImageConfig{MaxBytes: 1 << 20, MaxDimension: 1024, JPEGQuality: 80},
	}
	sessions := NewSessionHandler(service.NewSessionService(sessionRepo, messageRepo, fileRepo, rc, rc, blobs, log), log)
	aiService := service.NewAIService(fake, cfg, rc, log)
	messages := NewMessageHandler(service.NewChatService(sessionRepo, messageRepo, fileRepo, rc,
		service.ChatServiceOptions{Blobs: blobs, MaxUploadBytes: 4096}, log), aiService, log)
	ai := NewAIHandler(aiService, log)
	health := NewHealthHandler(map[string]Checker{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
		"redis":    rc.Ping,
	}, log)

	r := gin.New()
	r.GET("/", health.Root)
	r.GET("/health", health.Health)
	v1 := r.Group("/api/v1")
	v1.POST("/ai/chat", ai.Chat)
	v1.POST("/ai/chat/image", ai.ImageChat)
	v1.POST("/ai/chat/csv", ai.CSVChat)
	v1.GET("/sessions", sessions.ListSessions)
	v1.POST("/sessions", sessions.CreateSession)
	v1.GET("/sessions/:id", sessions.GetSession)
	v1.DELETE("/sessions/:id", sessions.DeleteSession)
	v1.GET("/sessions/:id/messages", messages.GetMessages)
	v1.POST("/sessions/:id/messages", messages.AddMessage)
	v1.POST("/sessions/:id/files", messages.SaveFile)
	v1.GET("/sessions/:id/files/:file_type", messages.GetFile)
	v1.DELETE("/sessions/:id/files/:file_type", messages.DeleteFile)
	v1.GET("/sessions/:id/plots", messages.GetPlots)

	return &testServer{engine: r, fake: fake, redis: mr, cache: rc}
}

func (s *testServer) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// envelope 统一响应结构，data 延迟解析
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}
