// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/internal/dataframe"
	"chat-gateway/internal/llm"
	"chat-gateway/internal/media"
	"chat-gateway/internal/service"
	"chat-gateway/pkg/response"
)

// statusClientClosed 客户端已断开，仅用于日志
const statusClientClosed = 499

// respondError 把服务层错误映射为 HTTP 响应
// 未知错误记录日志并返回 500
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.SessionNotFound(c)
	case errors.Is(err, service.ErrSessionExists):
		response.SessionExists(c)
	case errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrInvalidFileData),
		errors.Is(err, service.ErrEmptyInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrFileNotFound):
		response.FileNotFound(c)
	case errors.Is(err, service.ErrFileTooLarge):
		response.FileTooLarge(c, err.Error())
	case errors.Is(err, media.ErrInvalidImage):
		response.ErrorWithCode(c, http.StatusBadRequest, response.CodeInvalidImage, err.Error())
	case errors.Is(err, dataframe.ErrCSVParse):
		response.ErrorWithCode(c, http.StatusBadRequest, response.CodeCSVParse, err.Error())
	case errors.Is(err, service.ErrAuthDisabled):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrInvalidKey):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrNoRevocation):
		response.ErrorWithCode(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
	case llm.IsRateLimited(err):
		response.ErrorWithCode(c, http.StatusTooManyRequests, response.CodeRateLimited, "model rate limit exceeded, please retry later")
	case errors.Is(err, context.DeadlineExceeded):
		response.ErrorWithCode(c, http.StatusGatewayTimeout, response.CodeModelError, "model request timed out")
	case errors.Is(err, service.ErrModel):
		log.Warn("模型调用失败", zap.String("path", c.FullPath()), zap.Error(err))
		response.ModelError(c, err.Error())
	case errors.Is(err, context.Canceled):
		c.AbortWithStatus(statusClientClosed)
	default:
		log.Error("处理请求失败", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalError(c, "internal server error")
	}
}
