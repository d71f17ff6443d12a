package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/internal/service"
	"chat-gateway/pkg/response"
)

// SessionHandler 会话请求处理器
type SessionHandler struct {
	sessionService *service.SessionService
	log            *zap.Logger
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log,
	}
}

// ListSessions 获取会话列表
// @Summary 获取会话列表
// @Description 所有会话，最新的在前，每个会话带完整消息
// @Tags 会话
// @Produce json
// @Success 200 {object} response.Response{data=[]model.Session}
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.ListSessions(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, sessions)
}

// CreateSession 创建新会话
// @Summary 创建会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param body body service.CreateSessionRequest true "会话信息"
// @Success 201 {object} response.Response{data=model.Session}
// @Failure 409 {object} response.Response
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	session, err := h.sessionService.CreateSession(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Created(c, session)
}

// GetSession 获取单个会话
// @Summary 获取会话
// @Description 会话信息和消息数量，不带消息内容
// @Tags 会话
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response{data=service.SessionDetail}
// @Failure 404 {object} response.Response
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.sessionService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, session)
}

// DeleteSession 删除会话及其消息和文件
// @Summary 删除会话
// @Tags 会话
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.sessionService.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, gin.H{"message": "Session deleted successfully"})
}
