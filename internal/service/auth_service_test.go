package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-gateway/internal/config"
	"chat-gateway/pkg/jwt"
	"chat-gateway/pkg/util"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthService(t *testing.T, enabled bool, blacklist TokenBlacklist) (*AuthService, *jwt.JWTService) {
	t.Helper()
	hash, err := util.HashKey("s3cret")
	require.NoError(t, err)
	jwtService := jwt.NewJWTService(testSecret, time.Hour)
	cfg := config.AuthConfig{Enabled: enabled, JWTSecret: testSecret, AccessExpire: time.Hour, AccessKeyHash: hash}
	return NewAuthService(cfg, jwtService, blacklist, zap.NewNop()), jwtService
}

func TestIssueToken(t *testing.T) {
	ctx := context.Background()
	svc, jwtService := newAuthService(t, true, nil)

	_, err := svc.IssueToken(ctx, &TokenRequest{AccessKey: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidKey)

	resp, err := svc.IssueToken(ctx, &TokenRequest{AccessKey: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.InDelta(t, 3600, resp.ExpiresIn, 5)

	claims, err := jwtService.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "client", claims.ClientID)

	resp, err = svc.IssueToken(ctx, &TokenRequest{AccessKey: "s3cret", ClientID: " web "})
	require.NoError(t, err)
	claims, err = jwtService.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "web", claims.ClientID)
}

func TestIssueTokenDisabled(t *testing.T) {
	svc, _ := newAuthService(t, false, nil)
	_, err := svc.IssueToken(context.Background(), &TokenRequest{AccessKey: "s3cret"})
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestLogoutBlacklistsToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc, _ := newAuthService(t, true, env.cache)

	resp, err := svc.IssueToken(ctx, &TokenRequest{AccessKey: "s3cret"})
	require.NoError(t, err)
	assert.False(t, env.cache.IsTokenBlacklisted(ctx, util.HashToken(resp.AccessToken)))

	require.NoError(t, svc.Logout(ctx, resp.AccessToken, time.Now().Add(time.Hour)))
	assert.True(t, env.cache.IsTokenBlacklisted(ctx, util.HashToken(resp.AccessToken)))
}

func TestLogoutWithoutBlacklist(t *testing.T) {
	svc, _ := newAuthService(t, true, nil)
	err := svc.Logout(context.Background(), "token", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoRevocation)
}
