package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/internal/llm"
	"chat-gateway/internal/service"
	"chat-gateway/pkg/response"
)

// streamBuffer provider 与响应写入之间的缓冲
const streamBuffer = 32

// AIHandler 模型对话请求处理器
type AIHandler struct {
	aiService *service.AIService
	log       *zap.Logger
}

// NewAIHandler 创建 AIHandler 实例
func NewAIHandler(aiService *service.AIService, log *zap.Logger) *AIHandler {
	return &AIHandler{aiService: aiService, log: log}
}

// Chat 文本对话，流式返回
// @Summary 文本对话
// @Description 默认返回 text/plain 分块，Accept: text/event-stream 时返回 SSE
// @Tags AI
// @Accept json
// @Produce plain
// @Param body body service.ChatRequest true "对话内容"
// @Router /api/v1/ai/chat [post]
func (h *AIHandler) Chat(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.serveStream(c, func(ctx context.Context, chunks chan<- llm.StreamChunk) (*llm.Response, error) {
		return h.aiService.StreamChat(ctx, &req, chunks)
	})
}

// ImageChat 图片对话，流式返回
// @Summary 图片对话
// @Tags AI
// @Accept json
// @Produce plain
// @Param body body service.ImageChatRequest true "对话内容"
// @Router /api/v1/ai/chat/image [post]
func (h *AIHandler) ImageChat(c *gin.Context) {
	var req service.ImageChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.serveStream(c, func(ctx context.Context, chunks chan<- llm.StreamChunk) (*llm.Response, error) {
		return h.aiService.StreamImageChat(ctx, &req, chunks)
	})
}

// CSVChat CSV 数据分析
// @Summary CSV 分析
// @Tags AI
// @Accept json
// @Produce json
// @Param body body service.CSVAnalysisRequest true "查询和数据"
// @Success 200 {object} response.Response{data=service.CSVAnalysisResponse}
// @Router /api/v1/ai/chat/csv [post]
func (h *AIHandler) CSVChat(c *gin.Context) {
	var req service.CSVAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	result, err := h.aiService.AnalyzeCSV(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, result)
}

type streamFunc func(ctx context.Context, chunks chan<- llm.StreamChunk) (*llm.Response, error)

// serveStream 运行流式调用并把增量写给客户端
// 第一个增量之前出错返回 JSON 错误，之后出错在流末尾写错误事件
func (h *AIHandler) serveStream(c *gin.Context, run streamFunc) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	chunks := make(chan llm.StreamChunk, streamBuffer)
	errCh := make(chan error, 1)
	go func() {
		_, err := run(ctx, chunks)
		errCh <- err
		close(chunks)
	}()

	w := newStreamWriter(c)
	for chunk := range chunks {
		if chunk.Delta == "" || w.failed {
			continue
		}
		if err := w.delta(chunk.Delta); err != nil {
			// 客户端断开，取消上游请求，继续读空 chunks
			h.log.Debug("写入流式响应失败", zap.Error(err))
			cancel()
		}
	}

	err := <-errCh
	switch {
	case err == nil:
		w.done()
	case !w.started:
		respondError(c, h.log, err)
	case w.failed:
	default:
		h.log.Warn("流式响应中断", zap.String("path", c.FullPath()), zap.Error(err))
		w.fail(err)
	}
}

// streamWriter 根据 Accept 写 text/plain 或 SSE
type streamWriter struct {
	c       *gin.Context
	sse     bool
	started bool
	failed  bool
}

func newStreamWriter(c *gin.Context) *streamWriter {
	return &streamWriter{
		c:   c,
		sse: strings.Contains(c.GetHeader("Accept"), "text/event-stream"),
	}
}

func (w *streamWriter) start() {
	if w.started {
		return
	}
	w.started = true
	header := w.c.Writer.Header()
	if w.sse {
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
	} else {
		header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	header.Set("X-Accel-Buffering", "no")
	w.c.Status(http.StatusOK)
}

func (w *streamWriter) delta(text string) error {
	w.start()
	if w.sse {
		w.c.SSEvent("message", gin.H{"content": text})
	} else if _, err := io.WriteString(w.c.Writer, text); err != nil {
		w.failed = true
		return err
	}
	w.c.Writer.Flush()
	if err := w.c.Request.Context().Err(); err != nil {
		w.failed = true
		return err
	}
	return nil
}

func (w *streamWriter) done() {
	w.start()
	if w.sse {
		w.c.SSEvent("done", gin.H{})
	}
	w.c.Writer.Flush()
}

func (w *streamWriter) fail(err error) {
	if w.sse {
		w.c.SSEvent("error", gin.H{"message": err.Error()})
	} else {
		_, _ = io.WriteString(w.c.Writer, "\n\n❌ Error: "+err.Error())
	}
	w.c.Writer.Flush()
}
