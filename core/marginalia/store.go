package marginalia

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"RoomFM/logger"
	"RoomFM/model"
	"RoomFM/repository"
)

// 内容长度上限（字符数）
const maxContentRunes = 500

// Store 旁注的存储与分发
// 写路径：校验 → 持久化 → 广播；广播只在持久化成功后发出
type Store struct {
	repo        repository.MarginaliaRepository
	sessions    repository.SessionRepository
	rooms       repository.RoomRepository
	broadcaster Broadcaster
}

// NewStore 创建旁注存储
// broadcaster 由调用方构造注入，测试可传内存假实现或 NopBroadcaster
func NewStore(
	repo repository.MarginaliaRepository,
	sessions repository.SessionRepository,
	rooms repository.RoomRepository,
	broadcaster Broadcaster,
) *Store {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &Store{
		repo:        repo,
		sessions:    sessions,
		rooms:       rooms,
		broadcaster: broadcaster,
	}
}

// CreateInput 创建旁注的输入
type CreateInput struct {
	TrackID   int64
	SessionID int64
	Content   string
	Timestamp int    // 播放位置（秒），不是墙上时钟
	ParentID  *int64 // 一层回复
	IsArtist  bool   // 由外部身份授权方认定
}

// Create 创建旁注并广播给该曲目的在线订阅者
func (s *Store) Create(ctx context.Context, input CreateInput) (*model.MarginaliaView, error) {
	content := strings.TrimSpace(input.Content)
	if n := utf8.RuneCountInString(content); n < 1 || n > maxContentRunes {
		return nil, ErrContentLength
	}
	if input.Timestamp < 0 {
		return nil, ErrBadTimestamp
	}

	track, err := s.rooms.GetTrack(ctx, input.TrackID)
	if err != nil {
		return nil, fmt.Errorf("查询曲目失败: %w", err)
	}
	if track == nil {
		return nil, ErrTrackNotFound
	}

	session, err := s.sessions.GetByID(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.RoomID != track.RoomID {
		return nil, ErrSessionNotInRoom
	}

	var parent *model.Marginalia
	if input.ParentID != nil {
		parent, err = s.repo.GetByID(ctx, *input.ParentID)
		if err != nil {
			return nil, fmt.Errorf("查询父旁注失败: %w", err)
		}
		if parent == nil {
			return nil, ErrParentNotFound
		}
		if parent.TrackID != input.TrackID {
			return nil, ErrParentMismatch
		}
		// 回复只允许一层：父节点本身不能是回复
		if parent.ParentID != nil {
			return nil, ErrReplyTooDeep
		}
	}

	now := time.Now()
	item := &model.Marginalia{
		TrackID:   input.TrackID,
		SessionID: input.SessionID,
		Content:   content,
		Timestamp: input.Timestamp,
		IsArtist:  input.IsArtist,
		ParentID:  input.ParentID,
		CreatedAt: now,
	}
	// 持久化失败直接上抛，吞掉会悄悄丢失用户内容；
	// 回复和父旁注的回复时间在同一事务里落库，不会只成功一半
	if parent != nil {
		err = s.repo.CreateReply(ctx, item, parent.ID)
	} else {
		err = s.repo.Create(ctx, item)
	}
	if err != nil {
		return nil, fmt.Errorf("保存旁注失败: %w", err)
	}

	view := &model.MarginaliaView{
		ID:        item.ID,
		TrackID:   item.TrackID,
		Content:   item.Content,
		Timestamp: item.Timestamp,
		Pseudonym: session.Pseudonym,
		IsArtist:  item.IsArtist,
		ParentID:  item.ParentID,
		CreatedAt: item.CreatedAt,
	}

	s.publish(input.TrackID, EventNewMarginalia, view)

	logger.Info("marginalia created",
		logger.Int64("trackId", input.TrackID),
		logger.Int64("sessionId", input.SessionID),
		logger.Int64("id", item.ID),
		logger.Bool("isArtist", input.IsArtist))
	return view, nil
}

// List 返回曲目的顶层旁注及各自的回复，按播放位置升序
// includeArtist 为假时过滤掉已淡出的条目（回复不单独按淡出过滤）
func (s *Store) List(ctx context.Context, trackID int64, includeArtist bool) ([]*model.MarginaliaThread, error) {
	track, err := s.rooms.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("查询曲目失败: %w", err)
	}
	if track == nil {
		return nil, ErrTrackNotFound
	}

	rows, err := s.repo.ListByTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("查询旁注失败: %w", err)
	}

	// 先建顶层，再把回复挂到各自父节点；父节点已删除的回复成为孤儿，不再可达
	threads := make([]*model.MarginaliaThread, 0, len(rows))
	byID := make(map[int64]*model.MarginaliaThread, len(rows))
	for _, row := range rows {
		if row.ParentID != nil {
			continue
		}
		if row.IsFaded && !includeArtist {
			continue
		}
		thread := &model.MarginaliaThread{
			MarginaliaView: viewOf(row),
			LastRepliedAt:  row.LastRepliedAt,
			Replies:        []model.MarginaliaView{},
		}
		threads = append(threads, thread)
		byID[row.ID] = thread
	}
	for _, row := range rows {
		if row.ParentID == nil {
			continue
		}
		if parent, ok := byID[*row.ParentID]; ok {
			parent.Replies = append(parent.Replies, viewOf(row))
		}
	}

	return threads, nil
}

// Delete 艺术家专属的硬删除，删除后广播 marginalia-deleted
// 回复不做级联删除，失去父节点的回复在下次拉取时自然不可达
func (s *Store) Delete(ctx context.Context, trackID, marginaliaID int64, requestingIsArtist bool) error {
	if !requestingIsArtist {
		return ErrForbidden
	}

	item, err := s.repo.GetByID(ctx, marginaliaID)
	if err != nil {
		return fmt.Errorf("查询旁注失败: %w", err)
	}
	if item == nil || item.TrackID != trackID {
		return ErrNotFound
	}

	if err := s.repo.Delete(ctx, marginaliaID); err != nil {
		return fmt.Errorf("删除旁注失败: %w", err)
	}

	s.publish(trackID, EventMarginaliaDeleted, &DeletedData{ID: marginaliaID})

	logger.Info("marginalia deleted",
		logger.Int64("trackId", trackID),
		logger.Int64("id", marginaliaID))
	return nil
}

// SetFaded 艺术家专属的淡出开关：从默认视图隐藏但不删除
func (s *Store) SetFaded(ctx context.Context, trackID, marginaliaID int64, faded bool, requestingIsArtist bool) error {
	if !requestingIsArtist {
		return ErrForbidden
	}

	item, err := s.repo.GetByID(ctx, marginaliaID)
	if err != nil {
		return fmt.Errorf("查询旁注失败: %w", err)
	}
	if item == nil || item.TrackID != trackID {
		return ErrNotFound
	}

	if err := s.repo.SetFaded(ctx, marginaliaID, faded); err != nil {
		return fmt.Errorf("更新淡出标记失败: %w", err)
	}
	return nil
}

// publish 持久化成功后向曲目频道广播
func (s *Store) publish(trackID int64, eventType EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("序列化广播载荷失败", logger.ErrorField(err))
		return
	}
	s.broadcaster.Publish(trackID, &Event{
		Type:      eventType,
		TrackID:   trackID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func viewOf(row *model.MarginaliaWithAuthor) model.MarginaliaView {
	return model.MarginaliaView{
		ID:        row.ID,
		TrackID:   row.TrackID,
		Content:   row.Content,
		Timestamp: row.Timestamp,
		Pseudonym: row.Pseudonym,
		IsArtist:  row.IsArtist,
		IsFaded:   row.IsFaded,
		ParentID:  row.ParentID,
		CreatedAt: row.CreatedAt,
	}
}
