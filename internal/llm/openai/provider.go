// Package openai 通过 OpenAI 兼容接口调用模型
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"chat-gateway/internal/llm"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

func init() {
	llm.Register("openai", func(cfg llm.Config, log *zap.Logger) (llm.Provider, error) {
		return New(cfg, log)
	})
}

// Provider OpenAI 兼容实现
type Provider struct {
	client *openai.Client
	log    *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New 创建 Provider，BaseURL 为空时使用官方地址
func New(cfg llm.Config, log *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.RequestTimeout,
		},
	}
	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		log:    log.With(zap.String("provider", "openai")),
	}, nil
}

func (p *Provider) Name() string { return "openai" }

// Generate 非流式对话
func (p *Provider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	apiReq, err := buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, wrapError(err, "create chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response: no choices")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		TokensUsed:   resp.Usage.TotalTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		call, err := toToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

// Stream 流式对话
func (p *Provider) Stream(ctx context.Context, req *llm.Request, deltaCh chan<- llm.StreamChunk) (*llm.Response, error) {
	apiReq, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	apiReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, wrapError(err, "create chat completion stream")
	}
	defer stream.Close()

	var (
		sb      strings.Builder
		out     = &llm.Response{}
		pending = map[int]*openai.ToolCall{}
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, wrapError(err, "receive stream")
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.TokensUsed = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			sb.WriteString(choice.Delta.Content)
			if err := llm.Send(ctx, deltaCh, llm.StreamChunk{Delta: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}
		// 工具调用参数分片到达，按 index 拼接
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := pending[idx]
			if !ok {
				acc = &openai.ToolCall{}
				pending[idx] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Function.Name = tc.Function.Name
			}
			acc.Function.Arguments += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			out.FinishReason = string(choice.FinishReason)
		}
	}

	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		tc := pending[idx]
		call, err := toToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}

	if out.FinishReason != "" {
		if err := llm.Send(ctx, deltaCh, llm.StreamChunk{FinishReason: out.FinishReason}); err != nil {
			return nil, err
		}
	}
	out.Content = sb.String()
	return out, nil
}

func buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{Role: msg.Role}
		switch msg.Role {
		case llm.RoleTool:
			m.Content = msg.Content
			m.ToolCallID = msg.ToolCallID
			m.Name = msg.Name
		case llm.RoleAssistant:
			m.Content = msg.Content
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					return apiReq, errors.Wrapf(err, "marshal arguments of %s", tc.Name)
				}
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(args)},
				})
			}
		default:
			if len(msg.Images) == 0 {
				m.Content = msg.Content
				break
			}
			// 带图片时只能使用 MultiContent
			m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: msg.Content,
			})
			for _, img := range msg.Images {
				m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)),
						Detail: openai.ImageURLDetailAuto,
					},
				})
			}
		}
		apiReq.Messages = append(apiReq.Messages, m)
	}

	for _, t := range req.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return apiReq, nil
}

func toToolCall(id, name, arguments string) (llm.ToolCall, error) {
	call := llm.ToolCall{ID: id, Name: name, Arguments: map[string]interface{}{}}
	if strings.TrimSpace(arguments) == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(arguments), &call.Arguments); err != nil {
		return call, errors.Wrapf(err, "decode arguments of %s", name)
	}
	return call, nil
}

// wrapError 把 go-openai 的错误转换为 llm.APIError
func wrapError(err error, msg string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errors.Wrap(&llm.APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}, msg)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errors.Wrap(&llm.APIError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}, msg)
	}
	return errors.Wrap(err, msg)
}
