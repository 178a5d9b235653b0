package repository

import (
	"context"

	"RoomFM/model"

	"gorm.io/gorm"
)

// MarginaliaRepository 旁注数据访问接口
type MarginaliaRepository interface {
	Create(ctx context.Context, m *model.Marginalia) error
	// CreateReply 在同一事务里创建回复并更新父旁注的最后回复时间，
	// 不存在“回复已落库但父节点时间没动”的中间状态
	CreateReply(ctx context.Context, m *model.Marginalia, parentID int64) error
	GetByID(ctx context.Context, id int64) (*model.Marginalia, error)
	// ListByTrack 返回曲目的全部旁注及作者化名，按播放位置升序（同位置按创建时间升序）
	ListByTrack(ctx context.Context, trackID int64) ([]*model.MarginaliaWithAuthor, error)
	Delete(ctx context.Context, id int64) error
	SetFaded(ctx context.Context, id int64, faded bool) error
}

// gormMarginaliaRepository GORM 实现
type gormMarginaliaRepository struct {
	db *gorm.DB
}

// NewGormMarginaliaRepository 创建 GORM 旁注仓库
func NewGormMarginaliaRepository(db *gorm.DB) MarginaliaRepository {
	return &gormMarginaliaRepository{db: db}
}

// Create 创建旁注
func (r *gormMarginaliaRepository) Create(ctx context.Context, m *model.Marginalia) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// CreateReply 创建回复并更新父旁注的最后回复时间（单事务）
func (r *gormMarginaliaRepository) CreateReply(ctx context.Context, m *model.Marginalia, parentID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&model.Marginalia{}).
			Where("id = ?", parentID).
			Update("last_replied_at", m.CreatedAt).Error
	})
}

// GetByID 根据ID获取旁注
func (r *gormMarginaliaRepository) GetByID(ctx context.Context, id int64) (*model.Marginalia, error) {
	var m model.Marginalia
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListByTrack 获取曲目的全部旁注，连同作者化名一次 JOIN 取出
func (r *gormMarginaliaRepository) ListByTrack(ctx context.Context, trackID int64) ([]*model.MarginaliaWithAuthor, error) {
	var items []*model.MarginaliaWithAuthor
	err := r.db.WithContext(ctx).Model(&model.Marginalia{}).
		Select("marginalia.*, listening_sessions.pseudonym AS pseudonym").
		Joins("LEFT JOIN listening_sessions ON listening_sessions.id = marginalia.session_id").
		Where("marginalia.track_id = ?", trackID).
		Order("marginalia.timestamp ASC, marginalia.created_at ASC, marginalia.id ASC").
		Scan(&items).Error
	return items, err
}

// Delete 硬删除旁注
// 回复不做级联删除，父节点消失后回复成为孤儿行，由读取侧容忍
func (r *gormMarginaliaRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.Marginalia{}).Error
}

// SetFaded 设置淡出标记
func (r *gormMarginaliaRepository) SetFaded(ctx context.Context, id int64, faded bool) error {
	return r.db.WithContext(ctx).Model(&model.Marginalia{}).
		Where("id = ?", id).
		Update("is_faded", faded).Error
}
