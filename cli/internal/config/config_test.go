package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAtCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitAt(dir))

	_, err := os.Stat(Path())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", GetServerURL())
	assert.Equal(t, "ws://localhost:8000", Get().Server.WSURL)
	assert.False(t, IsLoggedIn())
	assert.Empty(t, GetCurrentSession())
}

func TestSavedValuesSurviveReload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitAt(dir))

	require.NoError(t, SaveToken("tok"))
	require.NoError(t, SaveCurrentSession("s1"))

	require.NoError(t, InitAt(dir))
	assert.Equal(t, "tok", GetToken())
	assert.Equal(t, "s1", GetCurrentSession())

	require.NoError(t, ClearToken())
	require.NoError(t, InitAt(dir))
	assert.False(t, IsLoggedIn())
	assert.Equal(t, "s1", GetCurrentSession())
}

func TestSetServerURL(t *testing.T) {
	require.NoError(t, InitAt(t.TempDir()))

	SetServerURL("https://chat.example.com/")
	assert.Equal(t, "https://chat.example.com", GetServerURL())
	assert.Equal(t, "wss://chat.example.com", Get().Server.WSURL)
}
