package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/internal/middleware"
	"chat-gateway/internal/service"
	"chat-gateway/pkg/response"
)

// AuthHandler 认证请求处理器
type AuthHandler struct {
	authService *service.AuthService
	log         *zap.Logger
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

// IssueToken 用访问密钥换取 Token
// @Summary 获取 Token
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.TokenRequest true "访问密钥"
// @Success 200 {object} response.Response{data=service.TokenResponse}
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req service.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.authService.IssueToken(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, result)
}

// Logout 登出，当前 Token 加入黑名单
// 需要经过 AuthMiddleware
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, expireAt := middleware.GetToken(c)
	if token == "" {
		response.Unauthorized(c, "authentication required")
		return
	}
	if err := h.authService.Logout(c.Request.Context(), token, expireAt); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.SuccessWithMessage(c, "logged out", nil)
}
