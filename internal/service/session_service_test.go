package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-gateway/internal/model"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestEnv(t).sessionService()

	s, err := svc.CreateSession(ctx, &CreateSessionRequest{Name: "Trip plan"})
	require.NoError(t, err)
	_, err = uuid.Parse(s.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, model.SessionModeText, s.Mode)
	assert.NotNil(t, s.Messages)

	s2, err := svc.CreateSession(ctx, &CreateSessionRequest{SessionID: "fixed", Mode: model.SessionModeCSV})
	require.NoError(t, err)
	assert.Equal(t, "fixed", s2.SessionID)
	assert.Equal(t, "New Chat", s2.Name)

	_, err = svc.CreateSession(ctx, &CreateSessionRequest{SessionID: "fixed", Name: "again"})
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = svc.CreateSession(ctx, &CreateSessionRequest{Name: "bad", Mode: "video"})
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := env.sessionService()

	_, err := svc.CreateSession(ctx, &CreateSessionRequest{SessionID: "s1", Name: "Sales", Mode: model.SessionModeCSV})
	require.NoError(t, err)
	require.NoError(t, env.messages.Create(ctx, &model.Message{SessionID: "s1", Role: "user", Content: "a", Timestamp: time.Now()}))
	require.NoError(t, env.messages.Create(ctx, &model.Message{SessionID: "s1", Role: "assistant", Content: "b", Timestamp: time.Now()}))

	detail, err := svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Sales", detail.Name)
	assert.Equal(t, model.SessionModeCSV, detail.Mode)
	assert.Equal(t, int64(2), detail.MessageCount)

	_, err = svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := env.sessionService()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.sessions.Create(ctx, &model.Session{SessionID: "old", Name: "old", Mode: "text", CreatedAt: base}))
	require.NoError(t, env.sessions.Create(ctx, &model.Session{SessionID: "new", Name: "new", Mode: "text", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, env.messages.Create(ctx, &model.Message{SessionID: "old", Role: "user", Content: "b", Timestamp: base.Add(2 * time.Minute)}))
	require.NoError(t, env.messages.Create(ctx, &model.Message{SessionID: "old", Role: "user", Content: "a", Timestamp: base.Add(time.Minute)}))

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].SessionID)
	assert.NotNil(t, sessions[0].Messages)
	assert.Empty(t, sessions[0].Messages)

	require.Len(t, sessions[1].Messages, 2)
	assert.Equal(t, "a", sessions[1].Messages[0].Content)
	assert.Equal(t, "b", sessions[1].Messages[1].Content)
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sessions := env.sessionService()
	chat := env.chatService(ChatServiceOptions{Blobs: env.blobs, BlobPrefix: "session-files"})

	_, err := sessions.CreateSession(ctx, &CreateSessionRequest{SessionID: "s1", Name: "x"})
	require.NoError(t, err)
	_, err = chat.AddMessage(ctx, "s1", &AddMessageRequest{Role: "user", Content: "hi"})
	require.NoError(t, err)

	big, _ := json.Marshal(map[string]string{"image_data": strings.Repeat("A", offloadThreshold+10)})
	_, err = chat.SaveFile(ctx, "s1", &SaveFileRequest{FileType: "image", FileData: big})
	require.NoError(t, err)
	assert.Equal(t, 1, env.blobs.Len())

	_, err = chat.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, env.redis.Exists("session:s1:messages"))
	require.NoError(t, env.cache.SetPlots(ctx, "s1", []model.Plot{{Data: json.RawMessage(`[]`), Layout: json.RawMessage(`{}`)}}))

	require.NoError(t, sessions.DeleteSession(ctx, "s1"))

	assert.Equal(t, 0, env.blobs.Len())
	assert.False(t, env.redis.Exists("session:s1:messages"))
	assert.False(t, env.redis.Exists("session:s1:plots"))

	msgs, err := env.messages.GetBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, sessions.DeleteSession(ctx, "s1"), ErrSessionNotFound)
}

func TestSessionServiceWithoutCache(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewSessionService(env.sessions, env.messages, env.files, nil, nil, nil, zap.NewNop())

	_, err := svc.CreateSession(ctx, &CreateSessionRequest{SessionID: "s1"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSession(ctx, "s1"))
}
