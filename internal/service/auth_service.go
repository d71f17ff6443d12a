package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-gateway/internal/config"
	"chat-gateway/pkg/jwt"
	"chat-gateway/pkg/util"
)

// TokenBlacklist Token 黑名单，由 cache.RedisCache 实现
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error
	IsTokenBlacklisted(ctx context.Context, tokenHash string) bool
}

// AuthService 认证服务
// 用访问密钥换取 JWT，登出时把 Token 加入黑名单
type AuthService struct {
	cfg        config.AuthConfig
	jwtService *jwt.JWTService
	blacklist  TokenBlacklist // 未启用 Redis 时为 nil，无法吊销 Token
	log        *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(cfg config.AuthConfig, jwtService *jwt.JWTService, blacklist TokenBlacklist, log *zap.Logger) *AuthService {
	return &AuthService{
		cfg:        cfg,
		jwtService: jwtService,
		blacklist:  blacklist,
		log:        log,
	}
}

// TokenRequest 换取 Token 的请求
type TokenRequest struct {
	AccessKey string `json:"access_key" binding:"required"`
	ClientID  string `json:"client_id"` // 调用方标识，默认 "client"
}

// TokenResponse Token 响应
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // 秒
}

// IssueToken 校验访问密钥并签发 Token
// 返回:
//   - error: ErrAuthDisabled / ErrInvalidKey
func (s *AuthService) IssueToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if !s.cfg.Enabled {
		return nil, ErrAuthDisabled
	}
	if s.cfg.AccessKeyHash == "" || !util.CheckKey(req.AccessKey, s.cfg.AccessKeyHash) {
		s.log.Warn("访问密钥校验失败", zap.String("client_id", req.ClientID))
		return nil, ErrInvalidKey
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = "client"
	}
	token, expireAt, err := s.jwtService.GenerateAccessToken(clientID)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expireAt).Seconds()),
	}, nil
}

// Logout 将 Token 加入黑名单，TTL 为 Token 的剩余有效期
// 返回:
//   - error: 没有黑名单时返回 ErrNoRevocation，Token 在过期前仍然有效
func (s *AuthService) Logout(ctx context.Context, token string, expireAt time.Time) error {
	if s.blacklist == nil {
		s.log.Warn("未启用 Redis，无法吊销 Token")
		return ErrNoRevocation
	}
	return s.blacklist.BlacklistToken(ctx, util.HashToken(token), expireAt)
}
