package model

import "time"

// Room 听歌房间，一组按顺序编排的曲目
// 由后台管理界面创建维护，本引擎只读
type Room struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Slug      string    `json:"slug" gorm:"size:64;uniqueIndex;not null"`
	Title     string    `json:"title" gorm:"size:200;not null"`
	IsActive  bool      `json:"isActive" gorm:"default:true;index"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Room) TableName() string {
	return "rooms"
}

// Track 房间内的曲目
// IsArchived 为管理员永久归档标记；DecayStartAt 非空表示按时间衰退的起点
type Track struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	RoomID       int64      `json:"roomId" gorm:"index;not null"`
	Position     int        `json:"position" gorm:"not null"` // 房间内的排序
	Title        string     `json:"title" gorm:"size:200;not null"`
	AudioPath    string     `json:"audioPath" gorm:"size:500;not null"` // 对象存储中的音频路径
	Duration     int        `json:"duration" gorm:"not null"`           // 秒，恒大于 0
	IsArchived   bool       `json:"isArchived" gorm:"default:false"`
	DecayStartAt *time.Time `json:"decayStartAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// ========== API 响应结构 ==========

// TrackView 曲目信息（API 响应用），附带衰退状态与解锁信息
type TrackView struct {
	Track
	DecayState      string `json:"decayState"` // visible, fading, archived
	RequiredSeconds int    `json:"requiredSeconds"`
	ListenedSeconds int64  `json:"listenedSeconds"`
	Unlocked        bool   `json:"unlocked"`
}

// RoomView 房间完整信息（API 响应用）
type RoomView struct {
	Room
	Tracks []TrackView `json:"tracks"`
}
