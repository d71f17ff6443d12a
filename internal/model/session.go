// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// 会话模式常量，对应前端的三种聊天模式
const (
	SessionModeText  = "text"  // 文本对话
	SessionModeImage = "image" // 图片对话
	SessionModeCSV   = "csv"   // CSV 数据分析
)

// Session 会话模型
// 对应数据库表 chat_sessions
// session_id 由前端生成（也可以由服务端生成 uuid）
type Session struct {
	// SessionID 会话唯一标识
	SessionID string `gorm:"primaryKey;size:64" json:"session_id"`

	// Name 会话名称，显示在侧边栏
	Name string `gorm:"size:255;not null" json:"name"`

	// Mode 会话模式: text / image / csv
	Mode string `gorm:"size:20;not null;default:text" json:"mode"`

	// CreatedAt 创建时间，会话列表按它倒序
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Messages 会话中的所有消息（一对多关系）
	Messages []Message `gorm:"foreignKey:SessionID;references:SessionID" json:"messages"`

	// Files 会话上传的文件
	Files []SessionFile `gorm:"foreignKey:SessionID;references:SessionID" json:"-"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "chat_sessions"
}

// IsValidMode 检查会话模式是否合法
func IsValidMode(mode string) bool {
	switch mode {
	case SessionModeText, SessionModeImage, SessionModeCSV:
		return true
	}
	return false
}
