package listening

import (
	"context"
	"fmt"
	"strings"
	"time"

	"RoomFM/cache"
	"RoomFM/logger"
	"RoomFM/model"
	"RoomFM/repository"
)

// Registry 会话注册与收听账本的业务管理器
// 会话以 (房间, 客户端令牌) 定位；令牌由客户端自带，服务端从不解释其内容
type Registry struct {
	rooms    repository.RoomRepository
	sessions repository.SessionRepository
	ledger   repository.LedgerRepository
	cache    *cache.SessionCache // 可为 nil（测试或未接 Redis 时）
}

// NewRegistry 创建会话注册器
func NewRegistry(
	rooms repository.RoomRepository,
	sessions repository.SessionRepository,
	ledger repository.LedgerRepository,
	sessionCache *cache.SessionCache,
) *Registry {
	return &Registry{
		rooms:    rooms,
		sessions: sessions,
		ledger:   ledger,
		cache:    sessionCache,
	}
}

// GetOrCreateSession 按 (房间, 令牌) 建立或恢复会话
// 同一令牌再次进入同一房间时恢复原会话（化名、当前曲目、位置都保留），只刷新活跃时间
func (r *Registry) GetOrCreateSession(ctx context.Context, roomID int64, clientToken string) (*model.ListeningSession, error) {
	if strings.TrimSpace(clientToken) == "" {
		return nil, ErrInvalidToken
	}

	room, err := r.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("查询房间失败: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	session, err := r.sessions.GetByRoomAndToken(ctx, roomID, clientToken)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}

	now := time.Now()
	if session != nil {
		// 恢复既有会话，只刷新活跃时间
		if err := r.sessions.Touch(ctx, session.ID, now); err != nil {
			logger.Warn("刷新会话活跃时间失败",
				logger.ErrorField(err),
				logger.Int64("sessionId", session.ID))
		}
		session.LastActiveAt = now
		r.touchPresence(ctx, roomID, session.ID)
		return session, nil
	}

	// 新会话：化名序号取创建时该房间已注册的会话数
	count, err := r.sessions.CountByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("统计房间会话失败: %w", err)
	}

	session = &model.ListeningSession{
		RoomID:       roomID,
		ClientToken:  clientToken,
		Pseudonym:    NewPseudonym(count),
		LastActiveAt: now,
		CreatedAt:    now,
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		// 并发首次进入：另一个请求可能已抢先创建同一 (房间, 令牌)，回读即可
		existing, lookupErr := r.sessions.GetByRoomAndToken(ctx, roomID, clientToken)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	r.touchPresence(ctx, roomID, session.ID)
	logger.Info("listening session created",
		logger.Int64("roomId", roomID),
		logger.Int64("sessionId", session.ID),
		logger.String("pseudonym", session.Pseudonym))
	return session, nil
}

// GetSession 根据ID获取会话
func (r *Registry) GetSession(ctx context.Context, sessionID int64) (*model.ListeningSession, error) {
	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// UpdatePosition 覆写会话的当前曲目与播放位置
// last-write-wins：同一令牌的多个标签页互相覆盖，迟到的写会盖掉更新的写，这是已知取舍
func (r *Registry) UpdatePosition(ctx context.Context, sessionID, trackID int64, position int) error {
	if position < 0 {
		position = 0
	}

	now := time.Now()
	ok, err := r.sessions.UpdatePosition(ctx, sessionID, trackID, position, now)
	if err != nil {
		return fmt.Errorf("更新播放位置失败: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	if r.cache != nil {
		if err := r.cache.SetPosition(ctx, sessionID, &cache.CachedPosition{
			TrackID:   trackID,
			Position:  position,
			UpdatedAt: now.UnixMilli(),
		}); err != nil {
			logger.Warn("缓存播放位置失败",
				logger.ErrorField(err),
				logger.Int64("sessionId", sessionID))
		}
	}
	return nil
}

// RecordListenTime 原子累加收听秒数并返回新的累计值
// delta ≤ 0 视为空操作（客户端时钟漂移不能污染账本），直接返回当前累计值
func (r *Registry) RecordListenTime(ctx context.Context, sessionID, trackID, deltaSeconds int64) (int64, error) {
	if deltaSeconds <= 0 {
		total, err := r.ledger.GetSeconds(ctx, sessionID, trackID)
		if err != nil {
			return 0, fmt.Errorf("读取收听时长失败: %w", err)
		}
		return total, nil
	}

	total, err := r.ledger.IncrementSeconds(ctx, sessionID, trackID, deltaSeconds)
	if err != nil {
		return 0, fmt.Errorf("累加收听时长失败: %w", err)
	}
	return total, nil
}

// BuildRoomView 组装房间视图：曲目按编排顺序，附衰退状态与该会话的解锁信息
// sessionID 为 0 时不附带个人账本（未登记的纯浏览）
func (r *Registry) BuildRoomView(ctx context.Context, room *model.Room, sessionID int64) (*model.RoomView, error) {
	tracks, err := r.rooms.ListTracks(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("查询房间曲目失败: %w", err)
	}

	var totals map[int64]int64
	if sessionID > 0 {
		totals, err = r.ledger.GetSecondsBySession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("读取会话账本失败: %w", err)
		}
	}

	now := time.Now()
	view := &model.RoomView{
		Room:   *room,
		Tracks: make([]model.TrackView, 0, len(tracks)),
	}
	for _, track := range tracks {
		listened := totals[track.ID]
		view.Tracks = append(view.Tracks, model.TrackView{
			Track:           *track,
			DecayState:      string(ComputeDecay(track.IsArchived, track.DecayStartAt, now)),
			RequiredSeconds: RequiredUnlockSeconds(track, now),
			ListenedSeconds: listened,
			Unlocked:        IsUnlocked(track, listened, now),
		})
	}
	return view, nil
}

// GetRoomBySlug 根据 slug 获取活跃房间
func (r *Registry) GetRoomBySlug(ctx context.Context, slug string) (*model.Room, error) {
	room, err := r.rooms.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("查询房间失败: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetTrack 根据ID获取曲目
func (r *Registry) GetTrack(ctx context.Context, trackID int64) (*model.Track, error) {
	track, err := r.rooms.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("查询曲目失败: %w", err)
	}
	if track == nil {
		return nil, ErrTrackNotFound
	}
	return track, nil
}

// OnlineCount 房间当前活跃会话数（基于 Redis 心跳，缓存不可用时为 0）
func (r *Registry) OnlineCount(ctx context.Context, roomID int64) int64 {
	if r.cache == nil {
		return 0
	}
	count, err := r.cache.GetOnlineCount(ctx, roomID)
	if err != nil {
		logger.Warn("统计在线会话失败",
			logger.ErrorField(err),
			logger.Int64("roomId", roomID))
		return 0
	}
	return count
}

// touchPresence 尽力而为的心跳刷新，失败只记日志
func (r *Registry) touchPresence(ctx context.Context, roomID, sessionID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.TouchPresence(ctx, roomID, sessionID); err != nil {
		logger.Warn("刷新会话心跳失败",
			logger.ErrorField(err),
			logger.Int64("roomId", roomID),
			logger.Int64("sessionId", sessionID))
	}
}
