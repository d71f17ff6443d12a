package service

import (
	"context"
	"sync"

	"chat-gateway/internal/model"
)

// MessageCache 消息列表缓存，由 cache.RedisCache 实现
type MessageCache interface {
	GetMessages(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetMessages(ctx context.Context, sessionID string, messages []model.Message) error
	InvalidateMessages(ctx context.Context, sessionID string) error
}

// PlotStore 保存每个会话最近一次 CSV 分析生成的图表
type PlotStore interface {
	SetPlots(ctx context.Context, sessionID string, plots []model.Plot) error
	GetPlots(ctx context.Context, sessionID string) ([]model.Plot, error)
	ClearPlots(ctx context.Context, sessionID string) error
}

// nopMessageCache 未启用 Redis 时使用，总是未命中
type nopMessageCache struct{}

func (nopMessageCache) GetMessages(context.Context, string) ([]model.Message, bool, error) {
	return nil, false, nil
}
func (nopMessageCache) SetMessages(context.Context, string, []model.Message) error { return nil }
func (nopMessageCache) InvalidateMessages(context.Context, string) error        { return nil }

// MemoryPlotStore 进程内图表存储，未启用 Redis 时使用
type MemoryPlotStore struct {
	mu    sync.RWMutex
	plots map[string][]model.Plot
}

// NewMemoryPlotStore 创建进程内图表存储
func NewMemoryPlotStore() *MemoryPlotStore {
	return &MemoryPlotStore{plots: make(map[string][]model.Plot)}
}

func (m *MemoryPlotStore) SetPlots(_ context.Context, sessionID string, plots []model.Plot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plots[sessionID] = append([]model.Plot(nil), plots...)
	return nil
}

func (m *MemoryPlotStore) GetPlots(_ context.Context, sessionID string) ([]model.Plot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Plot{}, m.plots[sessionID]...), nil
}

func (m *MemoryPlotStore) ClearPlots(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plots, sessionID)
	return nil
}
