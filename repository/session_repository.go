package repository

import (
	"context"
	"time"

	"RoomFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository 听歌会话数据访问接口
type SessionRepository interface {
	GetByRoomAndToken(ctx context.Context, roomID int64, clientToken string) (*model.ListeningSession, error)
	GetByID(ctx context.Context, id int64) (*model.ListeningSession, error)
	Create(ctx context.Context, session *model.ListeningSession) error
	CountByRoom(ctx context.Context, roomID int64) (int64, error)
	Touch(ctx context.Context, id int64, at time.Time) error
	UpdatePosition(ctx context.Context, id int64, trackID int64, position int, at time.Time) (bool, error)
}

// LedgerRepository 收听时长账本数据访问接口
// 计数只增不减，并发上报通过数据库原子自增合并
type LedgerRepository interface {
	// IncrementSeconds 原子累加并返回累加后的总秒数
	IncrementSeconds(ctx context.Context, sessionID, trackID, delta int64) (int64, error)
	GetSeconds(ctx context.Context, sessionID, trackID int64) (int64, error)
	// GetSecondsBySession 返回该会话在各曲目上的累计秒数 (trackID -> seconds)
	GetSecondsBySession(ctx context.Context, sessionID int64) (map[int64]int64, error)
}

// gormSessionRepository GORM 实现
type gormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository 创建 GORM 会话仓库
func NewGormSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

// GetByRoomAndToken 按 (房间, 客户端令牌) 查找会话
func (r *gormSessionRepository) GetByRoomAndToken(ctx context.Context, roomID int64, clientToken string) (*model.ListeningSession, error) {
	var session model.ListeningSession
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND client_token = ?", roomID, clientToken).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetByID 根据ID获取会话
func (r *gormSessionRepository) GetByID(ctx context.Context, id int64) (*model.ListeningSession, error) {
	var session model.ListeningSession
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Create 创建会话
func (r *gormSessionRepository) Create(ctx context.Context, session *model.ListeningSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// CountByRoom 统计房间内已注册的会话数
func (r *gormSessionRepository) CountByRoom(ctx context.Context, roomID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ListeningSession{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	return count, err
}

// Touch 刷新会话活跃时间
func (r *gormSessionRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ListeningSession{}).
		Where("id = ?", id).
		Update("last_active_at", at).Error
}

// UpdatePosition 覆写当前曲目与播放位置（last-write-wins，不做版本检查）
// 返回是否命中了会话行
func (r *gormSessionRepository) UpdatePosition(ctx context.Context, id int64, trackID int64, position int, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.ListeningSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_track":  trackID,
			"position":       position,
			"last_active_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// gormLedgerRepository GORM 实现
type gormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository 创建 GORM 账本仓库
func NewGormLedgerRepository(db *gorm.DB) LedgerRepository {
	return &gormLedgerRepository{db: db}
}

// IncrementSeconds 原子累加收听秒数
// 通过 INSERT ... ON DUPLICATE KEY UPDATE seconds = seconds + delta 实现，
// 同一会话的并发上报（例如复制的标签页）不会丢失计数
func (r *gormLedgerRepository) IncrementSeconds(ctx context.Context, sessionID, trackID, delta int64) (int64, error) {
	now := time.Now()
	entry := &model.ListenTimeEntry{
		SessionID: sessionID,
		TrackID:   trackID,
		Seconds:   delta,
		UpdatedAt: now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "track_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"seconds":    gorm.Expr("seconds + ?", delta),
			"updated_at": now,
		}),
	}).Create(entry).Error
	if err != nil {
		return 0, err
	}

	return r.GetSeconds(ctx, sessionID, trackID)
}

// GetSeconds 获取某 (会话, 曲目) 的累计秒数，无记录时为 0
func (r *gormLedgerRepository) GetSeconds(ctx context.Context, sessionID, trackID int64) (int64, error) {
	var entry model.ListenTimeEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND track_id = ?", sessionID, trackID).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return entry.Seconds, nil
}

// GetSecondsBySession 获取会话的全部累计秒数
func (r *gormLedgerRepository) GetSecondsBySession(ctx context.Context, sessionID int64) (map[int64]int64, error) {
	var entries []*model.ListenTimeEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[int64]int64, len(entries))
	for _, e := range entries {
		totals[e.TrackID] = e.Seconds
	}
	return totals, nil
}
