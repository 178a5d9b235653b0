package repository

import (
	"context"

	"RoomFM/model"

	"gorm.io/gorm"
)

// RoomRepository 房间/曲目数据访问接口
// 房间与曲目由后台管理流程维护，本引擎只读
type RoomRepository interface {
	GetBySlug(ctx context.Context, slug string) (*model.Room, error)
	GetByID(ctx context.Context, id int64) (*model.Room, error)
	ListTracks(ctx context.Context, roomID int64) ([]*model.Track, error)
	GetTrack(ctx context.Context, trackID int64) (*model.Track, error)
}

// gormRoomRepository GORM 实现
type gormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GORM 房间仓库
func NewGormRoomRepository(db *gorm.DB) RoomRepository {
	return &gormRoomRepository{db: db}
}

// GetBySlug 根据 slug 获取活跃房间
func (r *gormRoomRepository) GetBySlug(ctx context.Context, slug string) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Where("slug = ? AND is_active = ?", slug, true).
		First(&room).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// GetByID 根据ID获取房间
func (r *gormRoomRepository) GetByID(ctx context.Context, id int64) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&room).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// ListTracks 获取房间曲目，按编排顺序
func (r *gormRoomRepository) ListTracks(ctx context.Context, roomID int64) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("position ASC").
		Find(&tracks).Error
	return tracks, err
}

// GetTrack 根据ID获取曲目
func (r *gormRoomRepository) GetTrack(ctx context.Context, trackID int64) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).
		Where("id = ?", trackID).
		First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}
