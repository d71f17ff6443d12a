// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"chat-gateway/internal/model"
)

// SessionRepository 会话数据访问层
// 负责会话相关的所有数据库操作
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create 创建新会话
// 参数:
//   - ctx: 上下文
//   - session: 会话对象，CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误，主键冲突时为 gorm.ErrDuplicatedKey
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetByID 根据 ID 获取会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.Session: 会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Exists 检查会话是否存在
func (r *SessionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Session{}).Where("session_id = ?", id).Count(&count).Error
	return count > 0, err
}

// ListWithMessages 获取所有会话及其消息
// 会话按创建时间倒序，消息按时间正序
// 返回:
//   - []model.Session: 包含 Messages 字段的会话列表
//   - error: 数据库错误
func (r *SessionRepository) ListWithMessages(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC").Order("id ASC") // 最早的在前
		}).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// DeleteCascade 删除会话及其文件和消息
// 在同一个事务里按 文件 -> 消息 -> 会话 的顺序删除
// 返回:
//   - bool: 会话是否存在并被删除
//   - error: 数据库错误
func (r *SessionRepository) DeleteCascade(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&model.SessionFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("session_id = ?", id).Delete(&model.Session{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}
