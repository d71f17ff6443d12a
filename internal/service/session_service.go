package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"chat-gateway/internal/model"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/storage"
	"chat-gateway/pkg/util"
)

const blobDeleteConcurrency = 8

// SessionService 会话服务
// 负责会话的创建、列表和级联删除
type SessionService struct {
	sessionRepo *repository.SessionRepository // 会话数据访问层
	messageRepo *repository.MessageRepository // 消息数据访问层
	fileRepo    *repository.FileRepository    // 会话文件数据访问层
	cache       MessageCache                  // 消息列表缓存
	plots       PlotStore                     // 图表存储
	blobs       storage.BlobStore             // 附件对象存储，可为 nil
	log         *zap.Logger
}

// NewSessionService 创建 SessionService 实例
// cache 为 nil 时不使用缓存；blobs 为 nil 时附件只存数据库
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	fileRepo *repository.FileRepository,
	cache MessageCache,
	plots PlotStore,
	blobs storage.BlobStore,
	log *zap.Logger,
) *SessionService {
	if cache == nil {
		cache = nopMessageCache{}
	}
	if plots == nil {
		plots = NewMemoryPlotStore()
	}
	return &SessionService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		fileRepo:    fileRepo,
		cache:       cache,
		plots:       plots,
		blobs:       blobs,
		log:         log,
	}
}

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	SessionID string `json:"session_id"` // 为空时由服务端生成
	Name      string `json:"name"`
	Mode      string `json:"mode"` // text / image / csv，默认 text
}

// CreateSession 创建新会话
// 参数:
//   - ctx: 上下文
//   - req: 创建会话请求
//
// 返回:
//   - *model.Session: 创建的会话
//   - error: ErrInvalidMode / ErrSessionExists / 数据库错误
func (s *SessionService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*model.Session, error) {
	session := &model.Session{
		SessionID: strings.TrimSpace(req.SessionID),
		Name:      strings.TrimSpace(req.Name),
		Mode:      req.Mode,
	}
	if session.Mode == "" {
		session.Mode = model.SessionModeText
	}
	if !model.IsValidMode(session.Mode) {
		return nil, ErrInvalidMode
	}
	if session.SessionID == "" {
		session.SessionID = util.GenerateUUID()
	}
	if session.Name == "" {
		session.Name = "New Chat"
	}

	exists, err := s.sessionRepo.Exists(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrSessionExists
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		// 并发创建同一个 ID 时由主键约束兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrSessionExists
		}
		return nil, err
	}

	s.log.Info("会话已创建",
		zap.String("session_id", session.SessionID),
		zap.String("mode", session.Mode))
	session.Messages = []model.Message{}
	return session, nil
}

// ListSessions 获取所有会话，最新的在前，每个会话带有序消息
func (s *SessionService) ListSessions(ctx context.Context) ([]model.Session, error) {
	sessions, err := s.sessionRepo.ListWithMessages(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Messages == nil {
			sessions[i].Messages = []model.Message{}
		}
	}
	return sessions, nil
}

// SessionDetail 单个会话的信息，不带消息内容
type SessionDetail struct {
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `json:"message_count"`
}

// GetSession 获取单个会话及其消息数量
// 返回:
//   - error: 会话不存在时为 ErrSessionNotFound
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	count, err := s.messageRepo.CountBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{
		SessionID:    session.SessionID,
		Name:         session.Name,
		Mode:         session.Mode,
		CreatedAt:    session.CreatedAt,
		MessageCount: count,
	}, nil
}

// DeleteSession 删除会话及其消息、文件、缓存和对象存储中的附件
// 返回:
//   - error: 会话不存在时为 ErrSessionNotFound
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	// 先记下附件位置，删除行之后就找不到了
	var keys []string
	if s.blobs != nil {
		files, err := s.fileRepo.ListBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.StorageKey != nil && *f.StorageKey != "" {
				keys = append(keys, *f.StorageKey)
			}
		}
	}

	deleted, err := s.sessionRepo.DeleteCascade(ctx, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}

	if err := s.cache.InvalidateMessages(ctx, sessionID); err != nil {
		s.log.Warn("清除消息缓存失败", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.plots.ClearPlots(ctx, sessionID); err != nil {
		s.log.Warn("清除图表失败", zap.String("session_id", sessionID), zap.Error(err))
	}
	if len(keys) > 0 {
		if err := s.deleteBlobs(ctx, keys); err != nil {
			// 行已删除，残留的对象只记录日志
			s.log.Warn("删除附件失败", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	s.log.Info("会话已删除", zap.String("session_id", sessionID), zap.Int("blobs", len(keys)))
	return nil
}

func (s *SessionService) deleteBlobs(ctx context.Context, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobDeleteConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			return s.blobs.Delete(gctx, key)
		})
	}
	return g.Wait()
}
