package marginalia

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用客户端，不挂真实连接，只看 Send 通道
func newTestClient(h *Hub, buffer int) *Client {
	return &Client{
		ID:   "test-client",
		Hub:  h,
		Send: make(chan []byte, buffer),
	}
}

func receive(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var event Event
		require.NoError(t, json.Unmarshal(data, &event))
		return &event
	default:
		t.Fatal("该订阅者没有收到事件")
		return nil
	}
}

func TestHubPublishToSubscribers(t *testing.T) {
	h := NewHub()
	a := newTestClient(h, 4)
	b := newTestClient(h, 4)
	h.Subscribe(10, a)
	h.Subscribe(10, b)

	h.Publish(10, &Event{Type: EventNewMarginalia, TrackID: 10, Timestamp: 123})

	for _, c := range []*Client{a, b} {
		event := receive(t, c)
		assert.Equal(t, EventNewMarginalia, event.Type)
		assert.Equal(t, int64(10), event.TrackID)
	}
}

func TestHubChannelIsolation(t *testing.T) {
	h := NewHub()
	a := newTestClient(h, 4)
	b := newTestClient(h, 4)
	h.Subscribe(10, a)
	h.Subscribe(11, b)

	h.Publish(10, &Event{Type: EventNewMarginalia, TrackID: 10})

	assert.Len(t, a.Send, 1)
	// 另一条曲目的订阅者收不到
	assert.Empty(t, b.Send)
}

func TestHubSubscribeIdempotent(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, 4)

	h.Subscribe(10, c)
	h.Subscribe(10, c)
	assert.Equal(t, 1, h.SubscriberCount(10))

	h.Publish(10, &Event{Type: EventNewMarginalia, TrackID: 10})
	assert.Len(t, c.Send, 1) // 重复订阅不会收到重复事件
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, 4)
	h.Subscribe(10, c)
	h.Unsubscribe(10, c)

	assert.Equal(t, 0, h.SubscriberCount(10))
	h.Publish(10, &Event{Type: EventNewMarginalia, TrackID: 10})
	assert.Empty(t, c.Send)

	// 未订阅时取消订阅是空操作
	h.Unsubscribe(10, c)
	h.Unsubscribe(99, c)
}

func TestHubDetachRemovesAllSubscriptions(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, 4)
	h.Subscribe(10, c)
	h.Subscribe(11, c)

	h.Detach(c)

	assert.Equal(t, 0, h.SubscriberCount(10))
	assert.Equal(t, 0, h.SubscriberCount(11))

	// Detach 关闭发送通道
	_, open := <-c.Send
	assert.False(t, open)
}

func TestHubSkipsSlowSubscriber(t *testing.T) {
	h := NewHub()
	slow := newTestClient(h, 1)
	fast := newTestClient(h, 4)
	h.Subscribe(10, slow)
	h.Subscribe(10, fast)

	// 慢订阅者缓冲满后事件被跳过，发布方不会阻塞
	h.Publish(10, &Event{Type: EventNewMarginalia, TrackID: 10})
	h.Publish(10, &Event{Type: EventNewMarginalia, TrackID: 10})

	assert.Len(t, slow.Send, 1)
	assert.Len(t, fast.Send, 2)
}

func TestHubConcurrentPublishAndDetach(t *testing.T) {
	h := NewHub()

	// 发布和连接关闭并发进行：关闭 Send 通道不能撞上正在进行的发送
	for i := 0; i < 50; i++ {
		c := newTestClient(h, 1)
		h.Subscribe(10, c)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.Publish(10, &Event{Type: EventNewMarginalia, TrackID: 10})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Detach(c)
		}()
		wg.Wait()
	}

	assert.Equal(t, 0, h.SubscriberCount(10))
}

func TestHubPublishNoSubscribers(t *testing.T) {
	h := NewHub()
	// 没有订阅者时发布是空操作，不 panic
	h.Publish(10, &Event{Type: EventMarginaliaDeleted, TrackID: 10})
}

func TestHubSubscriberOrdering(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, 8)
	h.Subscribe(10, c)

	for i := int64(1); i <= 3; i++ {
		data, _ := json.Marshal(DeletedData{ID: i})
		h.Publish(10, &Event{Type: EventMarginaliaDeleted, TrackID: 10, Data: data})
	}

	// 单个订阅者按发布顺序收到事件
	for i := int64(1); i <= 3; i++ {
		event := receive(t, c)
		var payload DeletedData
		require.NoError(t, json.Unmarshal(event.Data, &payload))
		assert.Equal(t, i, payload.ID)
	}
}
