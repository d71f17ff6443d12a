package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chat-gateway/internal/cache"
	"chat-gateway/internal/database"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/storage"
)

type testEnv struct {
	db       *gorm.DB
	sessions *repository.SessionRepository
	messages *repository.MessageRepository
	files    *repository.FileRepository
	cache    *cache.RedisCache
	redis    *miniredis.Miniredis
	blobs    *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
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

	return &testEnv{
		db:       db,
		sessions: repository.NewSessionRepository(db),
		messages: repository.NewMessageRepository(db),
		files:    repository.NewFileRepository(db),
		cache:    cache.New(client, time.Minute, time.Hour),
		redis:    mr,
		blobs:    storage.NewMemoryStore(),
	}
}

func (e *testEnv) sessionService() *SessionService {
	return NewSessionService(e.sessions, e.messages, e.files, e.cache, e.cache, e.blobs, zap.NewNop())
}

func (e *testEnv) chatService(opts ChatServiceOptions) *ChatService {
	return NewChatService(e.sessions, e.messages, e.files, e.cache, opts, zap.NewNop())
}
