package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/config"
)

func TestNewBackends(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, config.StorageConfig{Backend: "database"})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = New(ctx, config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = New(ctx, config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	_, err = New(ctx, config.StorageConfig{Backend: "s3"})
	assert.Error(t, err, "bucket is required")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	data := []byte("hello")
	require.NoError(t, m.Put(ctx, "a/b", "text/plain", data))
	data[0] = 'j' // 存储的是副本

	got, err := m.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, m.Delete(ctx, "a/b", "missing"))
	_, err = m.Get(ctx, "a/b")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.Zero(t, m.Len())
}
