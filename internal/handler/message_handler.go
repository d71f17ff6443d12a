package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/internal/markdown"
	"chat-gateway/internal/model"
	"chat-gateway/internal/service"
	"chat-gateway/pkg/response"
)

// MessageHandler 消息、文件和图表的请求处理器
type MessageHandler struct {
	chatService *service.ChatService
	aiService   *service.AIService
	log         *zap.Logger
}

// NewMessageHandler 创建 MessageHandler 实例
func NewMessageHandler(chatService *service.ChatService, aiService *service.AIService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{
		chatService: chatService,
		aiService:   aiService,
		log:         log,
	}
}

// renderedMessage 带 HTML 渲染结果的消息
type renderedMessage struct {
	model.Message
	ContentHTML string `json:"content_html"`
}

// GetMessages 获取会话消息
// @Summary 获取会话消息
// @Description 按时间正序返回，format=html 时附带 content_html
// @Tags 消息
// @Produce json
// @Param id path string true "会话ID"
// @Param format query string false "html"
// @Param limit query int false "只返回最新的 N 条"
// @Success 200 {object} response.Response{data=[]model.Message}
// @Router /api/v1/sessions/{id}/messages [get]
func (h *MessageHandler) GetMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := h.chatService.GetRecentMessages(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if c.Query("format") != "html" {
		response.Success(c, messages)
		return
	}

	rendered := make([]renderedMessage, len(messages))
	for i, m := range messages {
		html, err := markdown.ToHTML(m.Content)
		if err != nil {
			// 渲染失败时前端退回显示原文
			h.log.Warn("渲染消息失败", zap.Int64("message_id", m.ID), zap.Error(err))
		}
		rendered[i] = renderedMessage{Message: m, ContentHTML: html}
	}
	response.Success(c, rendered)
}

// AddMessage 向会话追加消息
// @Summary 添加消息
// @Tags 消息
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param body body service.AddMessageRequest true "消息"
// @Success 200 {object} response.Response{data=model.Message}
// @Failure 404 {object} response.Response
// @Router /api/v1/sessions/{id}/messages [post]
func (h *MessageHandler) AddMessage(c *gin.Context) {
	var req service.AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	msg, err := h.chatService.AddMessage(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, msg)
}

// SaveFile 保存会话文件
// @Summary 保存会话文件
// @Tags 文件
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param body body service.SaveFileRequest true "文件"
// @Success 200 {object} response.Response{data=model.SessionFile}
// @Failure 413 {object} response.Response
// @Router /api/v1/sessions/{id}/files [post]
func (h *MessageHandler) SaveFile(c *gin.Context) {
	var req service.SaveFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	file, err := h.chatService.SaveFile(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, file)
}

// GetFile 获取会话某类文件的最新一份
// @Summary 获取会话文件
// @Tags 文件
// @Produce json
// @Param id path string true "会话ID"
// @Param file_type path string true "image / csv_info / csv_data"
// @Success 200 {object} response.Response{data=model.SessionFile}
// @Failure 404 {object} response.Response
// @Router /api/v1/sessions/{id}/files/{file_type} [get]
func (h *MessageHandler) GetFile(c *gin.Context) {
	file, err := h.chatService.GetFile(c.Request.Context(), c.Param("id"), c.Param("file_type"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, file)
}

// DeleteFile 删除会话某一类型的全部文件
// @Summary 删除会话文件
// @Tags 文件
// @Param id path string true "会话ID"
// @Param file_type path string true "image / csv_info / csv_data"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/sessions/{id}/files/{file_type} [delete]
func (h *MessageHandler) DeleteFile(c *gin.Context) {
	if err := h.chatService.DeleteFile(c.Request.Context(), c.Param("id"), c.Param("file_type")); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, gin.H{"message": "File deleted successfully"})
}

// GetPlots 获取会话最近一次 CSV 分析的图表
// @Router /api/v1/sessions/{id}/plots [get]
func (h *MessageHandler) GetPlots(c *gin.Context) {
	plots, err := h.aiService.GetPlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, plots)
}
