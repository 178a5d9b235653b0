package marginalia

import "encoding/json"

// EventType 广播事件类型
type EventType string

const (
	EventNewMarginalia     EventType = "new-marginalia"
	EventMarginaliaDeleted EventType = "marginalia-deleted"
)

// Event 曲目频道上的广播事件
type Event struct {
	Type      EventType       `json:"type"`
	TrackID   int64           `json:"trackId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // Unix 毫秒
}

// DeletedData marginalia-deleted 事件载荷
type DeletedData struct {
	ID int64 `json:"id"`
}

// Broadcaster 按曲目分发事件的发布端
// 显式构造并注入（而不是进程级单例），测试可以换成内存假实现
// 投递语义：尽力送达当前在线的订阅者，不做积压回放；掉线期间错过的事件靠重新拉取列表恢复
type Broadcaster interface {
	Publish(trackID int64, event *Event)
}

// NopBroadcaster 空实现，未接入实时通道时使用
type NopBroadcaster struct{}

// Publish 丢弃事件
func (NopBroadcaster) Publish(trackID int64, event *Event) {}
