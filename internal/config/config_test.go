package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chat-gateway/internal/logger"
)

// clearEnv 屏蔽运行环境里可能存在的同名变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERVER_PORT", "DATABASE_DRIVER", "DATABASE_NAME", "REDIS_ENABLED", "AUTH_ENABLED",
		"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "S3_BUCKET",
		"GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, loader, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, loader)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:8501"}, cfg.Server.CORS)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Redis.HistoryTTL)
	assert.Equal(t, time.Hour, cfg.Redis.PlotsTTL)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessExpire)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	assert.Equal(t, 3, cfg.CSV.MaxIterations)
	assert.Equal(t, int64(10*1024*1024), cfg.CSV.InlineMaxBytes)
	assert.Equal(t, 1000, cfg.CSV.InlineMaxRows)
	assert.Equal(t, "database", cfg.Storage.Backend)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, `
server:
  port: 9000
database:
  driver: mysql
  database: fromfile
llm:
  model: file-model
`)

	t.Setenv("DATABASE_NAME", "fromenv")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("S3_BUCKET", "attachments")
	t.Setenv("LLM_PROVIDER", "openai")

	cfg, _, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "fromenv", cfg.Database.Database)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "attachments", cfg.Storage.S3.Bucket)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "file-model", cfg.LLM.Model)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, "server: [port\n")

	_, _, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LLM_MODEL")
	wd := t.TempDir()
	chdir(t, wd)
	require.NoError(t, os.WriteFile(filepath.Join(wd, ".env"), []byte("LLM_MODEL=dotenv-model\n"), 0o644))
	// godotenv 直接写进进程环境
	t.Cleanup(func() { os.Unsetenv("LLM_MODEL") })

	cfg, _, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "dotenv-model", cfg.LLM.Model)
}

func TestAPIKeyFallback(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "explicit key wins", env: map[string]string{"LLM_API_KEY": "explicit", "GOOGLE_API_KEY": "google"}, want: "explicit"},
		{name: "google first", env: map[string]string{"GOOGLE_API_KEY": "google", "GEMINI_API_KEY": "gemini"}, want: "google"},
		{name: "gemini", env: map[string]string{"GEMINI_API_KEY": "gemini", "OPENAI_API_KEY": "openai"}, want: "gemini"},
		{name: "openai", env: map[string]string{"OPENAI_API_KEY": "openai"}, want: "openai"},
		{name: "none", env: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, _, err := Load(t.TempDir())
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.LLM.APIKey)
		})
	}
}

func TestWatchReloadsLogLevel(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	dir := t.TempDir()
	path := writeConfig(t, dir, "log:\n  level: info\n")

	cfg, loader, err := Load(dir)
	require.NoError(t, err)
	level := zap.NewAtomicLevelAt(logger.ParseLevel(cfg.Log.Level))

	changed := make(chan struct{}, 1)
	loader.Watch(func(next *Config) {
		level.SetLevel(logger.ParseLevel(next.Log.Level))
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
	assert.Eventually(t, func() bool { return level.Level() == zapcore.DebugLevel }, time.Second, 10*time.Millisecond)
}

func TestWatchWithoutConfigFile(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	_, loader, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.NotPanics(t, func() { loader.Watch(func(*Config) { t.Fatal("unexpected reload") }) })

	var nilLoader *Loader
	assert.NotPanics(t, func() { nilLoader.Watch(func(*Config) {}) })
}

// chdir 切换工作目录并在测试结束时恢复（等价于 Go 1.24 的 t.Chdir）
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
