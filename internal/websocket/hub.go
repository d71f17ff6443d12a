package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chat-gateway/internal/llm"
	"chat-gateway/internal/service"
)

// ChatStreamer 流式对话能力，由 service.AIService 实现
type ChatStreamer interface {
	StreamChat(ctx context.Context, req *service.ChatRequest, chunks chan<- llm.StreamChunk) (*llm.Response, error)
	StreamImageChat(ctx context.Context, req *service.ImageChatRequest, chunks chan<- llm.StreamChunk) (*llm.Response, error)
}

// Hub 是 WebSocket 连接的中心管理器
// 负责管理所有客户端连接，关闭时断开全部连接
type Hub struct {
	// 当前连接的客户端
	clients map[*Client]struct{}

	// 注册通道
	register chan *Client

	// 注销通道
	unregister chan *Client

	// Run 退出后关闭，避免注册注销阻塞
	stopped chan struct{}

	// 互斥锁，保护 clients
	mu sync.RWMutex

	streamer ChatStreamer
	log      *zap.Logger
}

// NewHub 创建 Hub 实例
func NewHub(streamer ChatStreamer, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		streamer:   streamer,
		log:        log,
	}
}

// Run 启动 Hub 的主循环，ctx 取消时关闭所有连接
// 应该在单独的 goroutine 中运行
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("WebSocket 客户端已连接", zap.String("client_id", client.clientID), zap.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("WebSocket 客户端已断开", zap.String("client_id", client.clientID), zap.Int("clients", total))

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register 注册客户端，Hub 已停止时直接关闭客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.Close()
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
		client.Close()
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
