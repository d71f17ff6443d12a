package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"chat-gateway/internal/model"
)

// FileRepository 会话文件数据访问层
type FileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建 FileRepository 实例
func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create 保存文件记录
// 同一类型可以保存多次，读取时取最新一条
func (r *FileRepository) Create(ctx context.Context, file *model.SessionFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// GetLatest 获取会话某一类型的最新文件
// 返回:
//   - *model.SessionFile: 文件记录，未找到返回 nil
//   - error: 数据库错误
func (r *FileRepository) GetLatest(ctx context.Context, sessionID, fileType string) (*model.SessionFile, error) {
	var file model.SessionFile
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND file_type = ?", sessionID, fileType).
		Order("created_at DESC").
		Order("id DESC").
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &file, nil
}

// ListBySessionID 获取会话的所有文件
func (r *FileRepository) ListBySessionID(ctx context.Context, sessionID string) ([]model.SessionFile, error) {
	var files []model.SessionFile
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&files).Error
	return files, err
}

// DeleteBySessionID 删除会话的文件，指定 fileType 时只删除该类型
// 返回:
//   - int64: 删除的行数
//   - error: 数据库错误
func (r *FileRepository) DeleteBySessionID(ctx context.Context, sessionID string, fileType ...string) (int64, error) {
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if len(fileType) > 0 && fileType[0] != "" {
		query = query.Where("file_type = ?", fileType[0])
	}
	res := query.Delete(&model.SessionFile{})
	return res.RowsAffected, res.Error
}
