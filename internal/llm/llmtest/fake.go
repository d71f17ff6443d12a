// Package llmtest 提供测试用的 Provider
package llmtest

import (
	"context"
	"sync"

	"chat-gateway/internal/llm"
)

// Fake 按顺序返回预设响应，并记录收到的请求
type Fake struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	breaks    []error
	requests  []*llm.Request
}

var _ llm.Provider = (*Fake)(nil)

// New 创建 Fake，响应依次返回，用完后重复最后一个
func New(responses ...*llm.Response) *Fake {
	return &Fake{responses: responses}
}

// FailWith 让下一次调用返回 err
func (f *Fake) FailWith(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	return f
}

// BreakWith 让下一次 Stream 发送完内容后返回 err，模拟中途断流
func (f *Fake) BreakWith(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breaks = append(f.breaks, err)
	return f
}

func (f *Fake) Name() string { return "fake" }

// Requests 返回收到的所有请求
func (f *Fake) Requests() []*llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*llm.Request(nil), f.requests...)
}

func (f *Fake) next(req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	f.requests = append(f.requests, &cp)

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.responses) == 0 {
		return &llm.Response{FinishReason: "STOP"}, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	out := *resp
	return &out, nil
}

func (f *Fake) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.next(req)
}

// Stream 把 Content 按字切成增量发送
func (f *Fake) Stream(ctx context.Context, req *llm.Request, deltaCh chan<- llm.StreamChunk) (*llm.Response, error) {
	resp, err := f.next(req)
	if err != nil {
		return nil, err
	}
	for _, r := range resp.Content {
		if err := llm.Send(ctx, deltaCh, llm.StreamChunk{Delta: string(r)}); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	var broken error
	if len(f.breaks) > 0 {
		broken, f.breaks = f.breaks[0], f.breaks[1:]
	}
	f.mu.Unlock()
	if broken != nil {
		resp.FinishReason = ""
		return resp, broken
	}

	if resp.FinishReason != "" {
		if err := llm.Send(ctx, deltaCh, llm.StreamChunk{FinishReason: resp.FinishReason}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
