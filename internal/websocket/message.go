// Package websocket 提供 WebSocket 流式对话
// 浏览器通过 /ws/chat 发送对话请求，服务端逐段推送模型输出
package websocket

import (
	"encoding/json"
	"time"

	"chat-gateway/internal/service"
)

// MessageType 消息类型常量
const (
	// 客户端 → 服务端
	TypeChat       = "chat"        // 发起一次对话
	TypeChatCancel = "chat:cancel" // 取消进行中的对话
	TypePing       = "ping"        // 应用层心跳

	// 服务端 → 客户端
	TypeChatDelta = "chat:delta" // 增量输出
	TypeChatDone  = "chat:done"  // 对话结束
	TypeError     = "error"      // 错误消息
	TypePong      = "pong"       // 心跳响应
)

// 对话模式，对应 /ai/chat 和 /ai/chat/image
const (
	ModeText  = "text"
	ModeImage = "image"
)

// Message 服务端发出的消息
type Message struct {
	Type      string      `json:"type"`                 // 消息类型
	Payload   interface{} `json:"payload,omitempty"`    // 消息内容
	Timestamp int64       `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string      `json:"message_id,omitempty"` // 对应请求的 message_id
}

// inboundMessage 客户端发来的消息，payload 按 type 延迟解析
type inboundMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	MessageID string          `json:"message_id,omitempty"`
}

// NewMessage 创建新消息
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewMessageWithID 创建带消息ID的新消息
func NewMessageWithID(msgType string, payload interface{}, messageID string) *Message {
	msg := NewMessage(msgType, payload)
	msg.MessageID = messageID
	return msg
}

// ==================== Payload 类型定义 ====================

// ChatPayload 对话请求
// mode 为空时按 text 处理
type ChatPayload struct {
	Mode        string                `json:"mode"`
	UserInput   string                `json:"user_input"`
	ImageData   string                `json:"image_data,omitempty"`
	ChatHistory []service.ChatMessage `json:"chat_history"`
}

// DeltaPayload 增量输出
type DeltaPayload struct {
	Content string `json:"content"`
}

// DonePayload 对话结束，content 为完整回复
type DonePayload struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ErrorPayload 错误消息 Payload
type ErrorPayload struct {
	Code    int    `json:"code"`    // 错误码，与 HTTP 响应的业务码一致
	Message string `json:"message"` // 错误信息
}
