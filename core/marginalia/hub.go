package marginalia

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"RoomFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientMessage 订阅端发来的控制消息
type ClientMessage struct {
	Type    string `json:"type"` // subscribe, unsubscribe, ping
	TrackID int64  `json:"trackId,omitempty"`
}

const (
	clientMsgSubscribe   = "subscribe"
	clientMsgUnsubscribe = "unsubscribe"
	clientMsgPing        = "ping"
)

// Client 一条 WebSocket 连接
// 一条连接可以同时订阅多个曲目频道
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Hub 按曲目分频道的 WebSocket 广播中心，实现 Broadcaster
// 订阅者集合是并发访问的共享结构：多个曲目同时发布、多个订阅者同时加入/离开都要安全
type Hub struct {
	mu sync.RWMutex
	// 曲目ID -> 订阅该曲目的连接集合
	subscribers map[int64]map[*Client]bool
	// 连接 -> 它订阅的曲目集合（注销时反查）
	clientTracks map[*Client]map[int64]bool
}

// NewHub 创建广播中心
func NewHub() *Hub {
	return &Hub{
		subscribers:  make(map[int64]map[*Client]bool),
		clientTracks: make(map[*Client]map[int64]bool),
	}
}

// NewClient 为一条升级后的连接创建客户端
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, 256),
	}
}

// Subscribe 订阅曲目频道，重复订阅是幂等的
func (h *Hub) Subscribe(trackID int64, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[trackID] == nil {
		h.subscribers[trackID] = make(map[*Client]bool)
	}
	h.subscribers[trackID][client] = true

	if h.clientTracks[client] == nil {
		h.clientTracks[client] = make(map[int64]bool)
	}
	h.clientTracks[client][trackID] = true

	logger.Debug("client subscribed",
		logger.Int64("trackId", trackID),
		logger.String("client", client.ID),
		logger.Int("subscribers", len(h.subscribers[trackID])))
}

// Unsubscribe 取消订阅，未订阅时为空操作（幂等）
func (h *Hub) Unsubscribe(trackID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeSubscription(trackID, client)
}

// Detach 连接关闭时移除它的全部订阅并关闭发送通道
func (h *Hub) Detach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tracks, ok := h.clientTracks[client]; ok {
		for trackID := range tracks {
			h.removeSubscription(trackID, client)
		}
	}
	delete(h.clientTracks, client)
	close(client.Send)

	logger.Debug("client detached", logger.String("client", client.ID))
}

// removeSubscription 内部方法，需要持有锁
func (h *Hub) removeSubscription(trackID int64, client *Client) {
	if subs, ok := h.subscribers[trackID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscribers, trackID)
		}
	}
	if tracks, ok := h.clientTracks[client]; ok {
		delete(tracks, trackID)
	}
}

// SubscriberCount 某曲目当前的订阅连接数
func (h *Hub) SubscriberCount(trackID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[trackID])
}

// Publish 向曲目频道的所有在线订阅者分发事件
// 单个订阅者按发布顺序收到事件；发送缓冲满的慢订阅者直接跳过（尽力送达，无积压）
func (h *Hub) Publish(trackID int64, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("序列化广播事件失败", logger.ErrorField(err))
		return
	}

	// 发送全程持读锁：Detach 关闭 Send 通道需要写锁，
	// 因此不会和这里的发送交错。发送本身是非阻塞的，不会长时间占锁
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscribers[trackID] {
		select {
		case client.Send <- data:
		default:
			// 缓冲区满，跳过该订阅者
			logger.Warn("订阅者发送缓冲区满",
				logger.Int64("trackId", trackID),
				logger.String("client", client.ID))
		}
	}
}

// ========== Client 方法 ==========

// ReadPump 读取订阅控制消息循环
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Detach(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("client", c.ID))
				}
				return
			}

			var msg ClientMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("invalid subscription message",
					logger.ErrorField(err),
					logger.String("client", c.ID))
				continue
			}

			switch msg.Type {
			case clientMsgSubscribe:
				if msg.TrackID > 0 {
					c.Hub.Subscribe(msg.TrackID, c)
				}
			case clientMsgUnsubscribe:
				if msg.TrackID > 0 {
					c.Hub.Unsubscribe(msg.TrackID, c)
				}
			case clientMsgPing:
				c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			}
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
