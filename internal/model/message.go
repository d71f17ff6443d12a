// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MessageRole 消息角色常量
const (
	MessageRoleUser      = "user"      // 用户消息
	MessageRoleAssistant = "assistant" // AI 助手响应
	MessageRoleSystem    = "system"    // 系统消息
)

// 消息类型常量
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeCSV   = "csv"
)

// Message 消息模型
// 对应数据库表 chat_messages
// 同一会话内的消息按 timestamp 正序排列，时间相同时按 id
type Message struct {
	// ID 消息唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// SessionID 所属会话ID
	SessionID string `gorm:"size:64;index:idx_messages_session_ts,priority:1;not null" json:"session_id"`

	// Role 消息角色: user / assistant / system
	Role string `gorm:"size:20;not null" json:"role"`

	// Content 消息内容，Markdown 文本
	Content string `gorm:"type:text;not null" json:"content"`

	// MessageType 消息类型，默认 text
	MessageType string `gorm:"size:20;not null;default:text" json:"message_type"`

	// AttachmentID 关联的会话文件（图片、CSV），可选
	AttachmentID *int64 `json:"attachment_id,omitempty"`

	// Timestamp 消息创建时间
	Timestamp time.Time `gorm:"index:idx_messages_session_ts,priority:2;not null" json:"timestamp"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "chat_messages"
}

// IsValidRole 检查消息角色是否合法
func IsValidRole(role string) bool {
	switch role {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
		return true
	}
	return false
}
