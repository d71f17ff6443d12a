package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"chat-gateway/internal/llm"

	"go.uber.org/zap"
)

// parseStream 读取 streamGenerateContent?alt=sse 的响应
// 每个 "data: " 行都是一个完整的 apiResponse
// 超过 idleTimeout 没有新数据时调用 abort 中断请求
func parseStream(ctx context.Context, body io.Reader, idleTimeout time.Duration, abort context.CancelFunc, deltaCh chan<- llm.StreamChunk, log *zap.Logger) (*llm.Response, error) {
	var stalled atomic.Bool
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	idle := time.AfterFunc(idleTimeout, func() {
		stalled.Store(true)
		abort()
	})
	defer idle.Stop()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		sb           strings.Builder
		result       = &llm.Response{}
		finishReason string
	)

	for scanner.Scan() {
		idle.Reset(idleTimeout)

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk apiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Debug("跳过无法解析的 SSE 数据", zap.Error(err))
			continue
		}

		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", chunk.PromptFeedback.BlockReason)
		}
		if chunk.ModelVersion != "" {
			result.Model = chunk.ModelVersion
		}
		if chunk.UsageMetadata != nil && chunk.UsageMetadata.total() > 0 {
			result.TokensUsed = chunk.UsageMetadata.total()
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		cand := chunk.Candidates[0]
		for _, p := range cand.Content.Parts {
			if p.Thought != nil && *p.Thought {
				continue
			}
			if p.Text != "" {
				sb.WriteString(p.Text)
				if err := llm.Send(ctx, deltaCh, llm.StreamChunk{Delta: p.Text}); err != nil {
					return nil, err
				}
			}
			if p.FunctionCall != nil {
				result.ToolCalls = append(result.ToolCalls, toToolCall(p.FunctionCall, len(result.ToolCalls)))
			}
		}
		if cand.FinishReason != "" {
			finishReason = cand.FinishReason
		}
	}

	result.Content = sb.String()
	result.FinishReason = finishReason

	// 已输出的部分内容随错误一起返回，调用方据此区分截断和正常结束
	if stalled.Load() {
		log.Warn("Gemini 流式响应空闲超时",
			zap.Duration("idle_timeout", idleTimeout),
			zap.Int("partial_bytes", sb.Len()))
		return result, fmt.Errorf("%w: no data for %v", llm.ErrStreamStalled, idleTimeout)
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}

	if finishReason != "" {
		if err := llm.Send(ctx, deltaCh, llm.StreamChunk{FinishReason: finishReason}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func toToolCall(fc *functionCall, idx int) llm.ToolCall {
	return llm.ToolCall{
		ID:        fmt.Sprintf("call_%s_%d", fc.Name, idx),
		Name:      fc.Name,
		Arguments: fc.Args,
	}
}
