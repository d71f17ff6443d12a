// Package gemini 通过 REST 接口调用 Google Gemini
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"chat-gateway/internal/llm"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

func init() {
	llm.Register("gemini", func(cfg llm.Config, log *zap.Logger) (llm.Provider, error) {
		return New(cfg, log)
	})
}

// Provider Gemini 实现
type Provider struct {
	baseURL     string
	apiKey      string
	idleTimeout time.Duration
	client      *http.Client
	log         *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New 创建 Gemini Provider
func New(cfg llm.Config, log *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   10,
	}

	return &Provider{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		idleTimeout: cfg.StreamIdleTimeout,
		client:      &http.Client{Transport: transport},
		log:         log.With(zap.String("provider", "gemini")),
	}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Generate 调用 generateContent
func (p *Provider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	resp, err := p.do(ctx, req, "generateContent")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	return toResponse(&apiResp)
}

// Stream 调用 streamGenerateContent?alt=sse
func (p *Provider) Stream(ctx context.Context, req *llm.Request, deltaCh chan<- llm.StreamChunk) (*llm.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := p.do(ctx, req, "streamGenerateContent")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseStream(ctx, resp.Body, p.idleTimeout, cancel, deltaCh, p.log)
}

func (p *Provider) do(ctx context.Context, req *llm.Request, method string) (*http.Response, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:%s", p.baseURL, modelName(req.Model), method)
	if method == "streamGenerateContent" {
		url += "?alt=sse"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	if method == "streamGenerateContent" {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.log.Warn("Gemini 返回错误",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)))
		return nil, &llm.APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(msg)}
	}
	return resp, nil
}

// modelName 去掉 "models/" 或 "gemini/" 之类的前缀
func modelName(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

func buildRequest(req *llm.Request) *apiRequest {
	temp := req.Temperature
	out := &apiRequest{
		GenerationConfig: &generationConfig{
			Temperature:     &temp,
			MaxOutputTokens: req.MaxTokens,
		},
		SafetySettings: defaultSafetySettings,
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)

		case llm.RoleAssistant:
			c := content{Role: "model"}
			if msg.Content != "" {
				c.Parts = append(c.Parts, part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				c.Parts = append(c.Parts, part{FunctionCall: &functionCall{Name: tc.Name, Args: tc.Arguments}})
			}
			if len(c.Parts) > 0 {
				out.Contents = append(out.Contents, c)
			}

		case llm.RoleTool:
			// 工具结果放在 user 轮的 functionResponse 中
			out.Contents = append(out.Contents, content{
				Role: "user",
				Parts: []part{{FunctionResponse: &functionResponse{
					Name:     msg.Name,
					Response: map[string]interface{}{"output": msg.Content},
				}}},
			})

		default:
			c := content{Role: "user"}
			for _, img := range msg.Images {
				c.Parts = append(c.Parts, part{InlineData: &inlineData{
					MimeType: img.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(img.Data),
				}})
			}
			if msg.Content != "" || len(c.Parts) == 0 {
				c.Parts = append(c.Parts, part{Text: msg.Content})
			}
			out.Contents = append(out.Contents, c)
		}
	}

	if len(system) > 0 {
		out.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}

	if len(req.Tools) > 0 {
		decls := make([]functionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  normalizeSchema(t.Parameters),
			})
		}
		out.Tools = []toolDeclaration{{FunctionDeclarations: decls}}
	}
	return out
}

func toResponse(apiResp *apiResponse) (*llm.Response, error) {
	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked: %s", apiResp.PromptFeedback.BlockReason)
	}
	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty gemini response: no candidates")
	}

	cand := apiResp.Candidates[0]
	resp := &llm.Response{
		Model:        apiResp.ModelVersion,
		FinishReason: cand.FinishReason,
	}
	if apiResp.UsageMetadata != nil {
		resp.TokensUsed = apiResp.UsageMetadata.total()
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Thought != nil && *p.Thought {
			continue
		}
		sb.WriteString(p.Text)
		if p.FunctionCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, toToolCall(p.FunctionCall, len(resp.ToolCalls)))
		}
	}
	resp.Content = sb.String()
	return resp, nil
}

// apiErrorMessage 从 {"error":{"message":...}} 中取出错误描述
func apiErrorMessage(body []byte) string {
	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return strings.TrimSpace(string(body))
}
