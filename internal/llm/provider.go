// Package llm 定义大模型调用的统一接口
// 具体厂商实现在子包中，通过 Register 注册
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Provider 大模型服务
type Provider interface {
	// Name 返回厂商名称
	Name() string

	// Generate 非流式调用，支持工具
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Stream 流式调用，增量写入 deltaCh，返回聚合后的完整响应
	// 调用方负责关闭 deltaCh；ctx 取消时立即返回
	Stream(ctx context.Context, req *Request, deltaCh chan<- StreamChunk) (*Response, error)
}

// Config 创建 Provider 所需的配置
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	RequestTimeout    time.Duration
	StreamIdleTimeout time.Duration
}

// Factory 创建 Provider 的工厂函数
type Factory func(cfg Config, log *zap.Logger) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register 注册厂商实现，通常在子包 init 中调用
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New 按名称创建 Provider
func New(cfg Config, log *zap.Logger) (Provider, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q (registered: %v)", cfg.Provider, Registered())
	}
	return f(cfg, log)
}

// Registered 返回已注册的厂商名称
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeRole 把前端传来的角色映射为模型角色
// 无法识别的角色按 user 处理
func NormalizeRole(role string) string {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return role
	default:
		return RoleUser
	}
}

// Send 向 deltaCh 写入一个增量，ctx 取消时返回错误
func Send(ctx context.Context, deltaCh chan<- StreamChunk, chunk StreamChunk) error {
	select {
	case deltaCh <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
