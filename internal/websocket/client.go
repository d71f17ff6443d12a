package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-gateway/internal/dataframe"
	"chat-gateway/internal/llm"
	"chat-gateway/internal/media"
	"chat-gateway/internal/service"
	"chat-gateway/pkg/response"
)

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小，图片对话的 base64 可能较大
	maxMessageSize = 16 * 1024 * 1024

	// 发送缓冲区大小
	sendBuffer = 256
)

var errClientClosed = errors.New("websocket client closed")

// Client 表示一个 WebSocket 客户端连接
// 同一连接同时只进行一次对话
type Client struct {
	hub      *Hub            // 所属的 Hub
	conn     *websocket.Conn // WebSocket 连接
	send     chan []byte     // 发送消息的通道
	done     chan struct{}   // 连接关闭时关闭
	clientID string          // 认证后的调用方标识
	log      *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex         // 保护 cancel 和 chatSeq
	cancel    context.CancelFunc // 进行中的对话，为 nil 表示空闲
	chatSeq   uint64             // 进行中对话的序号
}

// NewClient 创建新的客户端
func NewClient(hub *Hub, conn *websocket.Conn, clientID string, log *zap.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		clientID: clientID,
		log:      log.With(zap.String("client_id", clientID)),
	}
}

// ReadPump 读取 WebSocket 消息的 goroutine
// 负责从 WebSocket 读取消息并处理
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// 每次收到 Pong，重置读取超时
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket 读取失败", zap.Error(err))
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendMessage(NewMessage(TypeError, &ErrorPayload{Code: response.CodeBadRequest, Message: "invalid message"}))
			continue
		}
		c.handleMessage(&msg)
	}
}

// WritePump 写入 WebSocket 消息的 goroutine
// 负责从 send 通道读取消息并写入 WebSocket，定时发送 Ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage 向客户端发送消息，缓冲区满时丢弃
// 用于心跳等可丢失的消息
func (c *Client) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.log.Warn("发送缓冲区已满，丢弃消息", zap.String("type", msg.Type))
	}
}

// sendCtx 阻塞发送，直到写入缓冲区、ctx 取消或连接关闭
// 对话输出不能丢弃
func (c *Client) sendCtx(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errClientClosed
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *inboundMessage) {
	switch msg.Type {
	case TypePing:
		c.SendMessage(NewMessageWithID(TypePong, nil, msg.MessageID))

	case TypeChat:
		var payload ChatPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.SendMessage(NewMessageWithID(TypeError, &ErrorPayload{Code: response.CodeBadRequest, Message: "invalid chat payload"}, msg.MessageID))
			return
		}
		c.startChat(msg.MessageID, &payload)

	case TypeChatCancel:
		c.cancelChat()

	default:
		c.SendMessage(NewMessageWithID(TypeError, &ErrorPayload{Code: response.CodeBadRequest, Message: "unknown message type: " + msg.Type}, msg.MessageID))
	}
}

// startChat 在后台运行一次流式对话
func (c *Client) startChat(messageID string, payload *ChatPayload) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		c.SendMessage(NewMessageWithID(TypeError, &ErrorPayload{Code: response.CodeBadRequest, Message: "a chat is already in progress"}, messageID))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.chatSeq++
	seq := c.chatSeq
	c.mu.Unlock()

	go func() {
		defer c.finishChat(seq)
		c.runChat(ctx, cancel, messageID, payload)
	}()
}

func (c *Client) runChat(ctx context.Context, cancel context.CancelFunc, messageID string, payload *ChatPayload) {
	start := time.Now()
	chunks := make(chan llm.StreamChunk, 32)
	type result struct {
		resp *llm.Response
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		var res result
		switch strings.ToLower(payload.Mode) {
		case "", ModeText:
			res.resp, res.err = c.hub.streamer.StreamChat(ctx, &service.ChatRequest{
				UserInput:   payload.UserInput,
				ChatHistory: payload.ChatHistory,
			}, chunks)
		case ModeImage:
			res.resp, res.err = c.hub.streamer.StreamImageChat(ctx, &service.ImageChatRequest{
				UserInput:   payload.UserInput,
				ImageData:   payload.ImageData,
				ChatHistory: payload.ChatHistory,
			}, chunks)
		default:
			res.err = service.ErrInvalidMode
		}
		resCh <- res
		close(chunks)
	}()

	for chunk := range chunks {
		if chunk.Delta == "" {
			continue
		}
		if err := c.sendCtx(ctx, NewMessageWithID(TypeChatDelta, &DeltaPayload{Content: chunk.Delta}, messageID)); err != nil {
			cancel()
		}
	}

	res := <-resCh
	if res.err != nil {
		if ctx.Err() != nil {
			c.log.Debug("对话已取消", zap.String("message_id", messageID))
			return
		}
		c.log.Warn("WebSocket 对话失败", zap.String("message_id", messageID), zap.Error(res.err))
		code, message := errorPayload(res.err)
		c.sendCtx(context.Background(), NewMessageWithID(TypeError, &ErrorPayload{Code: code, Message: message}, messageID))
		return
	}

	c.sendCtx(context.Background(), NewMessageWithID(TypeChatDone, &DonePayload{
		Content:      res.resp.Content,
		FinishReason: res.resp.FinishReason,
	}, messageID))
	c.log.Debug("WebSocket 对话完成", zap.String("message_id", messageID), zap.Duration("latency", time.Since(start)))
}

// finishChat 对话结束后释放，期间已开始的新对话不受影响
func (c *Client) finishChat(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatSeq == seq && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// cancelChat 取消进行中的对话
func (c *Client) cancelChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Close 关闭客户端连接，取消进行中的对话
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancelChat()
		close(c.done)
	})
}

// errorPayload 把服务层错误转为错误码和错误信息
func errorPayload(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyInput), errors.Is(err, service.ErrInvalidMode):
		return response.CodeBadRequest, err.Error()
	case errors.Is(err, media.ErrInvalidImage):
		return response.CodeInvalidImage, err.Error()
	case errors.Is(err, dataframe.ErrCSVParse):
		return response.CodeCSVParse, err.Error()
	case llm.IsRateLimited(err):
		return response.CodeRateLimited, "model rate limit exceeded, please retry later"
	case errors.Is(err, service.ErrModel):
		return response.CodeModelError, err.Error()
	default:
		return response.CodeInternalError, "internal server error"
	}
}
