package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/pkg/response"
)

// Checker 依赖的健康检查
type Checker func(ctx context.Context) error

// HealthHandler 根路径和健康检查
type HealthHandler struct {
	checks  map[string]Checker
	timeout time.Duration
	log     *zap.Logger
}

// NewHealthHandler 创建 HealthHandler 实例
// checks 的 key 是组件名，如 database / redis
func NewHealthHandler(checks map[string]Checker, log *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, log: log}
}

// Root 服务运行状态
// @Router / [get]
func (h *HealthHandler) Root(c *gin.Context) {
	response.Success(c, gin.H{"message": "Chat Backend API is running"})
}

// Health 健康检查，任一依赖不可用时返回 503
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := "healthy"
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("健康检查失败", zap.String("component", name), zap.Error(err))
			components[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
			continue
		}
		components[name] = "ok"
	}

	data := gin.H{"status": status, "components": components}
	if status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:    response.CodeUnavailable,
			Message: "service unavailable",
			Data:    data,
		})
		return
	}
	response.Success(c, data)
}
