package model

import "time"

// ListeningSession 匿名访客在某个房间内的听歌身份
// 以 (room_id, client_token) 唯一定位；token 由客户端持有，服务端视为不透明字符串
// 会话永不删除，是该 token 的永久历史
type ListeningSession struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RoomID       int64     `json:"roomId" gorm:"uniqueIndex:idx_room_token;not null"`
	ClientToken  string    `json:"-" gorm:"size:128;uniqueIndex:idx_room_token;not null"` // 不透明令牌，不回传客户端
	Pseudonym    string    `json:"pseudonym" gorm:"size:100;not null"`
	CurrentTrack *int64    `json:"currentTrack,omitempty"`
	Position     int       `json:"position" gorm:"default:0"` // 当前播放位置（秒）
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName 指定表名
func (ListeningSession) TableName() string {
	return "listening_sessions"
}

// ListenTimeEntry 某会话在某曲目上累计的收听秒数
// (session_id, track_id) 唯一；只增不减，通过原子自增更新
type ListenTimeEntry struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID int64     `json:"sessionId" gorm:"uniqueIndex:idx_session_track;not null"`
	TrackID   int64     `json:"trackId" gorm:"uniqueIndex:idx_session_track;not null"`
	Seconds   int64     `json:"seconds" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (ListenTimeEntry) TableName() string {
	return "listen_time_entries"
}
