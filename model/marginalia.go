package model

import "time"

// Marginalia 锚定在曲目播放位置上的旁注，可一层嵌套回复
// Timestamp 是相对曲目开头的秒数，不是墙上时钟
type Marginalia struct {
	ID            int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID       int64      `json:"trackId" gorm:"index;not null"`
	SessionID     int64      `json:"sessionId" gorm:"index;not null"`
	Content       string     `json:"content" gorm:"size:500;not null"`
	Timestamp     int        `json:"timestamp" gorm:"not null;index"` // 播放位置（秒）
	IsArtist      bool       `json:"isArtist" gorm:"default:false"`
	ParentID      *int64     `json:"parentId,omitempty" gorm:"index"` // 一层回复的父节点
	IsFaded       bool       `json:"isFaded" gorm:"default:false"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastRepliedAt *time.Time `json:"lastRepliedAt,omitempty"`
}

// TableName 指定表名
func (Marginalia) TableName() string {
	return "marginalia"
}

// MarginaliaWithAuthor 旁注连同作者化名（仓库 JOIN 查询结果）
type MarginaliaWithAuthor struct {
	Marginalia
	Pseudonym string `json:"pseudonym"`
}

// MarginaliaView 带作者化名的旁注（API 响应与广播载荷用）
type MarginaliaView struct {
	ID        int64     `json:"id"`
	TrackID   int64     `json:"trackId"`
	Content   string    `json:"content"`
	Timestamp int       `json:"timestamp"`
	Pseudonym string    `json:"pseudonym"`
	IsArtist  bool      `json:"isArtist"`
	IsFaded   bool      `json:"isFaded"`
	ParentID  *int64    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarginaliaThread 顶层旁注及其按时间排列的回复
type MarginaliaThread struct {
	MarginaliaView
	LastRepliedAt *time.Time       `json:"lastRepliedAt,omitempty"`
	Replies       []MarginaliaView `json:"replies"`
}
