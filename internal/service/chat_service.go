package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"chat-gateway/internal/dataframe"
	"chat-gateway/internal/model"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/storage"
	"chat-gateway/pkg/util"
)

// 超过该大小的 base64 或 CSV 文本字段转存到对象存储
const offloadThreshold = 64 * 1024

// offloadFields 可以转存的 file_data 字段
var offloadFields = []string{"data", "image_data", "csv_data", "csv_string"}

const offloadMarker = "_offloaded_field"

const fileTypeCSVData = "csv_data"

// ChatService 聊天记录服务
// 负责消息的读写和会话文件的保存
type ChatService struct {
	sessionRepo    *repository.SessionRepository
	messageRepo    *repository.MessageRepository
	fileRepo       *repository.FileRepository
	cache          MessageCache
	blobs          storage.BlobStore
	blobPrefix     string
	maxUploadBytes int64
	inlineMaxBytes int64
	inlineMaxRows  int
	log            *zap.Logger
}

// ChatServiceOptions ChatService 的可选配置
type ChatServiceOptions struct {
	Blobs          storage.BlobStore // 为 nil 时文件只存数据库
	BlobPrefix     string
	MaxUploadBytes int64 // 0 表示不限制

	// csv_data 只保存小数据集，大数据集只保存 csv_info 元数据
	InlineMaxBytes int64 // 0 表示不限制
	InlineMaxRows  int   // 0 表示不限制
}

// NewChatService 创建 ChatService 实例
func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	fileRepo *repository.FileRepository,
	cache MessageCache,
	opts ChatServiceOptions,
	log *zap.Logger,
) *ChatService {
	if cache == nil {
		cache = nopMessageCache{}
	}
	return &ChatService{
		sessionRepo:    sessionRepo,
		messageRepo:    messageRepo,
		fileRepo:       fileRepo,
		cache:          cache,
		blobs:          opts.Blobs,
		blobPrefix:     strings.Trim(opts.BlobPrefix, "/"),
		maxUploadBytes: opts.MaxUploadBytes,
		inlineMaxBytes: opts.InlineMaxBytes,
		inlineMaxRows:  opts.InlineMaxRows,
		log:            log,
	}
}

// GetMessages 获取会话的全部消息，按时间正序
// 优先读缓存，未命中时查库并回填
// 会话不存在时返回空列表
func (s *ChatService) GetMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	messages, hit, err := s.cache.GetMessages(ctx, sessionID)
	if err != nil {
		s.log.Warn("读取消息缓存失败", zap.String("session_id", sessionID), zap.Error(err))
	}
	if hit {
		return messages, nil
	}

	messages, err = s.messageRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []model.Message{}
	}
	if err := s.cache.SetMessages(ctx, sessionID, messages); err != nil {
		s.log.Warn("写入消息缓存失败", zap.String("session_id", sessionID), zap.Error(err))
	}
	return messages, nil
}

// GetRecentMessages 获取会话最新的 limit 条消息，按时间正序
// limit <= 0 时返回全部消息
// 只取部分消息时不经过缓存
func (s *ChatService) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return s.GetMessages(ctx, sessionID)
	}
	messages, err := s.messageRepo.GetLatestBySessionID(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// AddMessageRequest 添加消息请求
type AddMessageRequest struct {
	Role         string     `json:"role"`
	Content      string     `json:"content"`
	Timestamp    *time.Time `json:"timestamp"`    // 为空时使用当前时间
	MessageType  string     `json:"message_type"` // 默认 text
	AttachmentID *int64     `json:"attachment_id"`
}

// AddMessage 向会话追加一条消息
// 返回:
//   - error: ErrInvalidRole / ErrSessionNotFound / 数据库错误
func (s *ChatService) AddMessage(ctx context.Context, sessionID string, req *AddMessageRequest) (*model.Message, error) {
	if !model.IsValidRole(req.Role) {
		return nil, ErrInvalidRole
	}
	exists, err := s.sessionRepo.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	msg := &model.Message{
		SessionID:    sessionID,
		Role:         req.Role,
		Content:      req.Content,
		MessageType:  req.MessageType,
		AttachmentID: req.AttachmentID,
		Timestamp:    time.Now().UTC(),
	}
	if msg.MessageType == "" {
		msg.MessageType = model.MessageTypeText
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		msg.Timestamp = req.Timestamp.UTC()
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateMessages(ctx, sessionID); err != nil {
		s.log.Warn("清除消息缓存失败", zap.String("session_id", sessionID), zap.Error(err))
	}
	return msg, nil
}

// SaveFileRequest 保存会话文件请求
// file_type 由前端约定: image / csv_info / csv_data
type SaveFileRequest struct {
	FileType string          `json:"file_type"`
	FileData json.RawMessage `json:"file_data"`
	FileName *string         `json:"file_name"`
}

// SaveFile 保存会话文件，每次保存都插入新行，读取时取最新
// 配置了对象存储时，大的 base64 字段会转存，行内只保留其余字段
// 返回:
//   - *model.SessionFile: 保存的文件，file_data 为完整内容
//   - error: ErrInvalidFileData / ErrFileTooLarge / ErrSessionNotFound
func (s *ChatService) SaveFile(ctx context.Context, sessionID string, req *SaveFileRequest) (*model.SessionFile, error) {
	if strings.TrimSpace(req.FileType) == "" {
		return nil, fmt.Errorf("%w: file_type is required", ErrInvalidFileData)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(req.FileData, &fields); err != nil || fields == nil {
		return nil, ErrInvalidFileData
	}
	size := int64(len(req.FileData))
	if s.maxUploadBytes > 0 && size > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, size, s.maxUploadBytes)
	}
	if req.FileType == fileTypeCSVData {
		if err := s.checkInlineCSV(fields); err != nil {
			return nil, err
		}
	}

	exists, err := s.sessionRepo.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	file := &model.SessionFile{
		SessionID: sessionID,
		FileType:  req.FileType,
		FileName:  req.FileName,
		FileData:  datatypes.JSON(req.FileData),
		Storage:   model.FileStorageDatabase,
		SizeBytes: size,
	}

	if s.blobs != nil {
		if err := s.offload(ctx, file, fields); err != nil {
			return nil, err
		}
	}

	if err := s.fileRepo.Create(ctx, file); err != nil {
		return nil, err
	}

	s.log.Info("会话文件已保存",
		zap.String("session_id", sessionID),
		zap.String("file_type", file.FileType),
		zap.String("storage", file.Storage),
		zap.Int64("size_bytes", size))

	// 返回给调用方的始终是完整内容
	file.FileData = datatypes.JSON(req.FileData)
	return file, nil
}

// checkInlineCSV 数据集达到 inline 上限时拒绝保存 csv_data
// 与客户端的规则一致: 大小 >= inlineMaxBytes 或行数 > inlineMaxRows
func (s *ChatService) checkInlineCSV(fields map[string]json.RawMessage) error {
	var text string
	for _, name := range []string{"csv_string", "csv_data"} {
		if raw, ok := fields[name]; ok {
			if err := json.Unmarshal(raw, &text); err == nil {
				break
			}
		}
	}
	if s.inlineMaxBytes > 0 && int64(len(text)) >= s.inlineMaxBytes {
		return fmt.Errorf("%w: csv data of %d bytes is too large for permanent storage, save csv_info only",
			ErrFileTooLarge, len(text))
	}

	if s.inlineMaxRows <= 0 {
		return nil
	}
	// 没有 rows 字段时按 CSV 内容计数
	var rows int
	if raw, ok := fields["rows"]; ok {
		if err := json.Unmarshal(raw, &rows); err != nil || rows < 0 {
			return fmt.Errorf("%w: rows must be a non-negative integer", ErrInvalidFileData)
		}
	} else if text != "" {
		frame, err := dataframe.ParseCSV(strings.NewReader(text))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFileData, err)
		}
		rows = frame.Rows()
		frame.Release()
	}
	if rows > s.inlineMaxRows {
		return fmt.Errorf("%w: csv data with %d rows is too large for permanent storage, save csv_info only",
			ErrFileTooLarge, rows)
	}
	return nil
}

// GetFile 获取会话某类文件的最新一份
func (s *ChatService) GetFile(ctx context.Context, sessionID, fileType string) (*model.SessionFile, error) {
	file, err := s.fileRepo.GetLatest(ctx, sessionID, fileType)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrFileNotFound
	}
	if file.Storage == model.FileStorageS3 {
		if err := s.restore(ctx, file); err != nil {
			return nil, err
		}
	}
	return file, nil
}

// DeleteFile 删除会话某一类型的全部文件，包括对象存储中的附件
// 大数据集只保存元数据时，用来清除上一个数据集的 csv_data
// 返回:
//   - error: 没有该类型文件时为 ErrFileNotFound
func (s *ChatService) DeleteFile(ctx context.Context, sessionID, fileType string) error {
	if strings.TrimSpace(fileType) == "" {
		return fmt.Errorf("%w: file_type is required", ErrInvalidFileData)
	}
	var keys []string
	if s.blobs != nil {
		files, err := s.fileRepo.ListBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.FileType == fileType && f.StorageKey != nil && *f.StorageKey != "" {
				keys = append(keys, *f.StorageKey)
			}
		}
	}

	deleted, err := s.fileRepo.DeleteBySessionID(ctx, sessionID, fileType)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrFileNotFound
	}

	if len(keys) > 0 {
		if err := s.blobs.Delete(ctx, keys...); err != nil {
			s.log.Warn("删除附件失败", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	s.log.Info("会话文件已删除",
		zap.String("session_id", sessionID),
		zap.String("file_type", fileType),
		zap.Int64("rows", deleted))
	return nil
}

// offload 把最大的 base64 字段写入对象存储
func (s *ChatService) offload(ctx context.Context, file *model.SessionFile, fields map[string]json.RawMessage) error {
	field := ""
	for _, name := range offloadFields {
		raw, ok := fields[name]
		if !ok || len(raw) < offloadThreshold || raw[0] != '"' {
			continue
		}
		if field == "" || len(raw) > len(fields[field]) {
			field = name
		}
	}
	if field == "" {
		return nil
	}

	var payload string
	if err := json.Unmarshal(fields[field], &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFileData, err)
	}

	key := path.Join(s.blobPrefix, file.SessionID, file.FileType, util.GenerateUUID())
	if err := s.blobs.Put(ctx, key, "text/plain", []byte(payload)); err != nil {
		return fmt.Errorf("upload %s: %w", field, err)
	}

	fields[field] = json.RawMessage(`""`)
	marker, _ := json.Marshal(field)
	fields[offloadMarker] = marker
	stripped, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	file.FileData = datatypes.JSON(stripped)
	file.Storage = model.FileStorageS3
	file.StorageKey = &key
	return nil
}

// restore 从对象存储取回被转存的字段
func (s *ChatService) restore(ctx context.Context, file *model.SessionFile) error {
	if s.blobs == nil || file.StorageKey == nil {
		return fmt.Errorf("file %d is stored externally but no blob store is configured", file.ID)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(file.FileData, &fields); err != nil {
		return err
	}
	var field string
	if err := json.Unmarshal(fields[offloadMarker], &field); err != nil || field == "" {
		return fmt.Errorf("file %d has no offload marker", file.ID)
	}

	payload, err := s.blobs.Get(ctx, *file.StorageKey)
	if err != nil {
		return fmt.Errorf("download %s: %w", *file.StorageKey, err)
	}
	value, err := json.Marshal(string(payload))
	if err != nil {
		return err
	}
	fields[field] = value
	delete(fields, offloadMarker)

	restored, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	file.FileData = datatypes.JSON(restored)
	return nil
}
