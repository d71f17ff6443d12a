package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-gateway/internal/config"
	"chat-gateway/internal/llm"
	"chat-gateway/internal/media"
	"chat-gateway/internal/model"
)

// ErrModel 模型调用失败，原始错误通过 errors.Is/As 仍可取到
var ErrModel = errors.New("model request failed")

const defaultImagePrompt = "Describe this image."

// AIService 模型对话服务
// 文本和图片对话走流式接口，CSV 分析走带工具的非流式循环
type AIService struct {
	provider llm.Provider
	llmCfg   config.LLMConfig
	csvCfg   config.CSVConfig
	imgOpts  media.Options
	plots    PlotStore
	log      *zap.Logger
}

// NewAIService 创建 AIService 实例
func NewAIService(provider llm.Provider, cfg *config.Config, plots PlotStore, log *zap.Logger) *AIService {
	if plots == nil {
		plots = NewMemoryPlotStore()
	}
	return &AIService{
		provider: provider,
		llmCfg:   cfg.LLM,
		csvCfg:   cfg.CSV,
		imgOpts: media.Options{
			MaxBytes:     cfg.Image.MaxBytes,
			MaxDimension: cfg.Image.MaxDimension,
			JPEGQuality:  cfg.Image.JPEGQuality,
		},
		plots: plots,
		log:   log.With(zap.String("provider", provider.Name())),
	}
}

// ChatMessage 前端传来的一条历史消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 文本对话请求
type ChatRequest struct {
	UserInput   string        `json:"user_input"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

// ImageChatRequest 图片对话请求，image_data 为 base64
type ImageChatRequest struct {
	UserInput   string        `json:"user_input"`
	ImageData   string        `json:"image_data"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

// StreamChat 文本对话，增量写入 chunks
// 消息顺序: 系统提示词、历史消息、本次输入
// 返回:
//   - *llm.Response: 完整回复
//   - error: ErrEmptyInput / ErrModel
func (s *AIService) StreamChat(ctx context.Context, req *ChatRequest, chunks chan<- llm.StreamChunk) (*llm.Response, error) {
	if strings.TrimSpace(req.UserInput) == "" {
		return nil, ErrEmptyInput
	}
	messages := s.baseMessages(req.ChatHistory)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.UserInput})
	return s.stream(ctx, "text", messages, chunks)
}

// StreamImageChat 图片对话
// 图片会被解码校验，过大时先压缩
// 返回:
//   - error: media.ErrInvalidImage / ErrModel
func (s *AIService) StreamImageChat(ctx context.Context, req *ImageChatRequest, chunks chan<- llm.StreamChunk) (*llm.Response, error) {
	img, err := media.DecodeImage(req.ImageData)
	if err != nil {
		return nil, err
	}
	original := len(img.Data)
	img, err = media.Normalize(img, s.imgOpts)
	if err != nil {
		return nil, err
	}
	if len(img.Data) != original {
		s.log.Debug("图片已压缩",
			zap.Int("from_bytes", original),
			zap.Int("to_bytes", len(img.Data)),
			zap.Int("width", img.Width),
			zap.Int("height", img.Height))
	}

	text := req.UserInput
	if strings.TrimSpace(text) == "" {
		text = defaultImagePrompt
	}
	messages := s.baseMessages(req.ChatHistory)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: text,
		Images:  []llm.Image{{MIMEType: img.MIMEType, Data: img.Data}},
	})
	return s.stream(ctx, "image", messages, chunks)
}

// GetPlots 获取会话最近一次 CSV 分析的图表
func (s *AIService) GetPlots(ctx context.Context, sessionID string) ([]model.Plot, error) {
	plots, err := s.plots.GetPlots(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if plots == nil {
		plots = []model.Plot{}
	}
	return plots, nil
}

func (s *AIService) baseMessages(history []ChatMessage) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	if s.llmCfg.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.llmCfg.SystemPrompt})
	}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: llm.NormalizeRole(m.Role), Content: m.Content})
	}
	return messages
}

func (s *AIService) newRequest(messages []llm.Message, tools []llm.Tool) *llm.Request {
	return &llm.Request{
		Model:       s.llmCfg.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: s.llmCfg.Temperature,
		MaxTokens:   s.llmCfg.MaxOutputTokens,
	}
}

func (s *AIService) stream(ctx context.Context, kind string, messages []llm.Message, chunks chan<- llm.StreamChunk) (*llm.Response, error) {
	start := time.Now()
	resp, err := s.provider.Stream(ctx, s.newRequest(messages, nil), chunks)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("流式调用失败", zap.String("kind", kind), zap.Error(err), zap.Duration("latency", time.Since(start)))
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	s.log.Info("流式调用完成",
		zap.String("kind", kind),
		zap.Int("history", len(messages)-1),
		zap.Int("chars", len(resp.Content)),
		zap.Int("tokens", resp.TokensUsed),
		zap.String("finish_reason", resp.FinishReason),
		zap.Duration("latency", time.Since(start)))
	return resp, nil
}

// generate 非流式调用，受 request_timeout 限制
func (s *AIService) generate(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	if s.llmCfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.llmCfg.RequestTimeout)
		defer cancel()
	}
	resp, err := s.provider.Generate(ctx, s.newRequest(messages, tools))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	return resp, nil
}
