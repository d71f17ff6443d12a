// Package websocket 通过网关的 /ws/chat 进行流式对话
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 消息类型常量，与网关保持一致
const (
	TypePing       = "ping"
	TypePong       = "pong"
	TypeChat       = "chat"
	TypeChatCancel = "chat:cancel"
	TypeChatDelta  = "chat:delta"
	TypeChatDone   = "chat:done"
	TypeError      = "error"
)

// 心跳间隔
const heartbeatInterval = 30 * time.Second

// ErrClosed 连接已关闭
var ErrClosed = errors.New("连接已关闭")

// Message WebSocket 消息结构
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ChatMessage 历史消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 对话请求
type ChatRequest struct {
	Mode        string        `json:"mode"` // text / image
	UserInput   string        `json:"user_input"`
	ImageData   string        `json:"image_data,omitempty"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

// ServerError 网关推送的错误
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("网关错误 (%d): %s", e.Code, e.Message)
}

// Client WebSocket 客户端
type Client struct {
	conn     *websocket.Conn
	sendChan chan []byte
	done     chan struct{}

	mu        sync.Mutex
	isRunning bool
	active    *call // 网关同一连接同时只处理一个对话
}

// call 一次进行中的对话
type call struct {
	id       string
	events   chan *Message
	finished chan struct{}
}

// BuildURL 拼接 /ws/chat 地址，token 为空时不带参数
// wsBase: 例如 ws://localhost:8000
func BuildURL(wsBase, token string) string {
	u := strings.TrimRight(wsBase, "/") + "/ws/chat"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// Dial 连接到网关
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("连接失败 (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("连接失败: %w", err)
	}

	c := &Client{
		conn:      conn,
		sendChan:  make(chan []byte, 64),
		done:      make(chan struct{}),
		isRunning: true,
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Close 断开连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		return
	}
	c.isRunning = false
	close(c.done)

	// 发送关闭帧
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

// Chat 发起一次对话，增量写给 onDelta，返回完整回复
// ctx 取消时通知网关停止生成
func (c *Client) Chat(ctx context.Context, req *ChatRequest, onDelta func(string)) (string, error) {
	if req.ChatHistory == nil {
		req.ChatHistory = []ChatMessage{}
	}
	cl := &call{id: uuid.NewString(), events: make(chan *Message, 64), finished: make(chan struct{})}

	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.active != nil {
		c.mu.Unlock()
		return "", errors.New("上一次对话尚未结束")
	}
	c.active = cl
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		close(cl.finished)
	}()

	if err := c.send(TypeChat, req, cl.id); err != nil {
		return "", err
	}

	var full strings.Builder
	for {
		select {
		case <-ctx.Done():
			_ = c.send(TypeChatCancel, nil, cl.id)
			return full.String(), ctx.Err()

		case <-c.done:
			return full.String(), ErrClosed

		case msg := <-cl.events:
			switch msg.Type {
			case TypeChatDelta:
				var p struct {
					Content string `json:"content"`
				}
				if err := json.Unmarshal(msg.Payload, &p); err != nil {
					continue
				}
				full.WriteString(p.Content)
				if onDelta != nil {
					onDelta(p.Content)
				}

			case TypeChatDone:
				var p struct {
					Content string `json:"content"`
				}
				if err := json.Unmarshal(msg.Payload, &p); err == nil && p.Content != "" {
					return p.Content, nil
				}
				return full.String(), nil

			case TypeError:
				serverErr := &ServerError{}
				if err := json.Unmarshal(msg.Payload, serverErr); err != nil {
					serverErr.Message = string(msg.Payload)
				}
				return full.String(), serverErr
			}
		}
	}
}

// send 编码消息并放入发送队列
func (c *Client) send(msgType string, payload interface{}, messageID string) error {
	msg := map[string]interface{}{
		"type":       msgType,
		"message_id": messageID,
		"timestamp":  time.Now().UnixMilli(),
	}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// readPump 读取消息并分发给进行中的对话
func (c *Client) readPump() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == TypePong {
			continue
		}

		c.mu.Lock()
		active := c.active
		c.mu.Unlock()
		if active == nil || (msg.MessageID != "" && msg.MessageID != active.id) {
			continue
		}
		select {
		case active.events <- &msg:
		case <-active.finished:
		case <-c.done:
			return
		}
	}
}

// writePump 写入消息并定时发送心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.sendChan:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			heartbeat, _ := json.Marshal(map[string]interface{}{
				"type":      TypePing,
				"timestamp": time.Now().UnixMilli(),
			})
			if err := c.conn.WriteMessage(websocket.TextMessage, heartbeat); err != nil {
				return
			}
		}
	}
}
