package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/model"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute, time.Hour), mr
}

func TestMessagesCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, hit, err := c.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, hit)

	msgs := []model.Message{
		{ID: 1, SessionID: "s1", Role: "user", Content: "hi", MessageType: "text", Timestamp: time.Unix(100, 0).UTC()},
		{ID: 2, SessionID: "s1", Role: "assistant", Content: "hello", MessageType: "text", Timestamp: time.Unix(101, 0).UTC()},
	}
	require.NoError(t, c.SetMessages(ctx, "s1", msgs))
	assert.Equal(t, time.Minute, mr.TTL("session:s1:messages"))

	got, hit, err := c.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[1].Content)

	require.NoError(t, c.InvalidateMessages(ctx, "s1"))
	_, hit, err = c.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestEmptyMessagesAreCachedAsHit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.NoError(t, c.SetMessages(ctx, "empty", nil))
	got, hit, err := c.GetMessages(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Empty(t, got)
}

func TestPlots(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	plots := []model.Plot{
		{Data: json.RawMessage(`[{"type":"bar","x":[1,2],"y":[3,4]}]`), Layout: json.RawMessage(`{"title":"A"}`)},
		{Data: json.RawMessage(`[]`), Layout: json.RawMessage(`{}`)},
	}
	require.NoError(t, c.SetPlots(ctx, "s", plots))
	assert.Equal(t, time.Hour, mr.TTL("session:s:plots"))

	got, err := c.GetPlots(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"title":"A"}`, string(got[0].Layout))

	// 覆盖而不是追加
	require.NoError(t, c.SetPlots(ctx, "s", plots[:1]))
	got, err = c.GetPlots(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, c.ClearPlots(ctx, "s"))
	got, err = c.GetPlots(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAllowRequestTokenBucket(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	now := time.Unix(1700000000, 0)

	// 容量 3，之后每秒补充 1 个
	for i := 0; i < 3; i++ {
		ok, err := c.allowAt(ctx, "1.2.3.4", 1, 3, now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.allowAt(ctx, "1.2.3.4", 1, 3, now.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4*time.Second, mr.TTL("rate_limit:1.2.3.4"))

	ok, err = c.allowAt(ctx, "1.2.3.4", 1, 3, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.allowAt(ctx, "1.2.3.4", 1, 3, now.Add(1100*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok, "a fresh window must not refill the whole burst")

	ok, err = c.allowAt(ctx, "5.6.7.8", 1, 3, now)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.AllowRequest(ctx, "1.2.3.4", 0, 3)
	assert.Error(t, err)
}

func TestAllowRequestUsesWallClock(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	ok, err := c.AllowRequest(ctx, "9.9.9.9", 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.AllowRequest(ctx, "9.9.9.9", 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenBlacklist(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	assert.False(t, c.IsTokenBlacklisted(ctx, "abc"))
	require.NoError(t, c.BlacklistToken(ctx, "abc", time.Now().Add(time.Hour)))
	assert.True(t, c.IsTokenBlacklisted(ctx, "abc"))

	// 已过期的 Token 不需要加入黑名单
	require.NoError(t, c.BlacklistToken(ctx, "old", time.Now().Add(-time.Minute)))
	assert.False(t, c.IsTokenBlacklisted(ctx, "old"))
}
