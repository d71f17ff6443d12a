package model

import (
	"time"

	"gorm.io/datatypes"
)

// 文件存储位置
const (
	FileStorageDatabase = "database" // file_data 完整存放在数据库
	FileStorageS3       = "s3"       // 大字段转存到对象存储
)

// SessionFile 会话文件模型
// 对应数据库表 session_files
// 前端约定的 file_type: image / csv_info / csv_data
type SessionFile struct {
	ID         int64          `gorm:"primaryKey" json:"id"`
	SessionID  string         `gorm:"size:64;index:idx_files_session_type,priority:1;not null" json:"session_id"`
	FileType   string         `gorm:"size:50;index:idx_files_session_type,priority:2;not null" json:"file_type"`
	FileName   *string        `gorm:"size:255" json:"file_name,omitempty"`
	FileData   datatypes.JSON `json:"file_data"`
	Storage    string         `gorm:"size:20;not null;default:database" json:"storage"`
	StorageKey *string        `gorm:"size:512" json:"storage_key,omitempty"`
	SizeBytes  int64          `json:"size_bytes"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (SessionFile) TableName() string {
	return "session_files"
}
