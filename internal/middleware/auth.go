// Package middleware 提供 HTTP 请求的中间件
// 包括 JWT 认证、CORS 跨域、日志记录、限流等
package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chat-gateway/pkg/jwt"
	"chat-gateway/pkg/response"
	"chat-gateway/pkg/util"
)

// 上下文中的键
const (
	ContextClientID = "client_id"
	ContextToken    = "token"
	ContextTokenExp = "token_exp"
)

// TokenBlacklist 检查 Token 是否已登出，由 cache.RedisCache 实现
type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, tokenHash string) bool
}

// AuthMiddleware 创建 JWT 认证中间件
// 验证请求头中的 Bearer Token，浏览器 WebSocket 无法设置请求头，也接受 ?token=
// 参数:
//   - jwtService: JWT 服务实例，用于解析和验证 Token
//   - blacklist: Token 黑名单，可以为 nil
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AuthMiddleware(jwtService *jwt.JWTService, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			response.AbortWithCode(c, 401, response.CodeUnauthorized, "authentication required")
			return
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			response.AbortWithCode(c, 401, response.CodeUnauthorized, "invalid or expired token")
			return
		}

		// 登出后 Token 会被加入黑名单，黑名单里只存哈希
		if blacklist != nil && blacklist.IsTokenBlacklisted(c.Request.Context(), util.HashToken(tokenString)) {
			response.AbortWithCode(c, 401, response.CodeUnauthorized, "token has been revoked")
			return
		}

		c.Set(ContextClientID, claims.ClientID)
		c.Set(ContextToken, tokenString)
		if claims.ExpiresAt != nil {
			c.Set(ContextTokenExp, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

// extractToken 从 Authorization 头或 token 查询参数中取出 Token
func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetClientID 从上下文获取调用方标识，未认证时返回空字符串
func GetClientID(c *gin.Context) string {
	return c.GetString(ContextClientID)
}

// GetToken 从上下文获取原始 Token 和过期时间
func GetToken(c *gin.Context) (string, time.Time) {
	return c.GetString(ContextToken), c.GetTime(ContextTokenExp)
}
