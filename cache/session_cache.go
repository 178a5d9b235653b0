package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"RoomFM/db"

	"github.com/redis/go-redis/v9"
)

const (
	roomOnlineSetKey   = "room:%d:online_sessions" // Set: 在线会话集合
	sessionPresenceKey = "room:%d:presence:%d"     // String: 会话心跳 key (roomID:sessionID)
	sessionPositionKey = "session:%d:position"     // String: 最近播放位置 JSON
	presenceTTL        = 90 * time.Second          // 心跳过期时间
	positionTTL        = 24 * time.Hour
)

// SessionCache 会话相关的 Redis 缓存
// 心跳与位置缓存都是尽力而为，丢失只影响在线统计与续播提示，不影响账本
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache 创建会话缓存
func NewSessionCache() *SessionCache {
	return &SessionCache{client: db.RedisClient}
}

// CachedPosition 缓存的播放位置
type CachedPosition struct {
	TrackID   int64 `json:"trackId"`
	Position  int   `json:"position"`
	UpdatedAt int64 `json:"updatedAt"` // Unix 毫秒
}

// TouchPresence 刷新会话心跳并加入房间在线集合
func (c *SessionCache) TouchPresence(ctx context.Context, roomID, sessionID int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	presenceKey := fmt.Sprintf(sessionPresenceKey, roomID, sessionID)
	onlineKey := fmt.Sprintf(roomOnlineSetKey, roomID)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, presenceKey, time.Now().UnixMilli(), presenceTTL)
	pipe.SAdd(ctx, onlineKey, sessionID)
	pipe.Expire(ctx, onlineKey, positionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemovePresence 移除会话在线状态
func (c *SessionCache) RemovePresence(ctx context.Context, roomID, sessionID int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	presenceKey := fmt.Sprintf(sessionPresenceKey, roomID, sessionID)
	onlineKey := fmt.Sprintf(roomOnlineSetKey, roomID)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, presenceKey)
	pipe.SRem(ctx, onlineKey, sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetOnlineCount 统计房间当前活跃会话数（基于心跳）
// 顺带清理已过期的集合成员
func (c *SessionCache) GetOnlineCount(ctx context.Context, roomID int64) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	onlineKey := fmt.Sprintf(roomOnlineSetKey, roomID)
	members, err := c.client.SMembers(ctx, onlineKey).Result()
	if err != nil {
		return 0, err
	}

	active := int64(0)
	expired := make([]interface{}, 0)
	for _, member := range members {
		var sessionID int64
		if _, err := fmt.Sscanf(member, "%d", &sessionID); err != nil {
			continue
		}

		presenceKey := fmt.Sprintf(sessionPresenceKey, roomID, sessionID)
		exists, err := c.client.Exists(ctx, presenceKey).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			active++
		} else {
			expired = append(expired, member)
		}
	}

	if len(expired) > 0 {
		c.client.SRem(ctx, onlineKey, expired...)
	}

	return active, nil
}

// SetPosition 缓存会话最近的播放位置
func (c *SessionCache) SetPosition(ctx context.Context, sessionID int64, pos *CachedPosition) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	key := fmt.Sprintf(sessionPositionKey, sessionID)
	return c.client.Set(ctx, key, data, positionTTL).Err()
}

// GetPosition 读取会话最近的播放位置，未缓存时返回 nil
func (c *SessionCache) GetPosition(ctx context.Context, sessionID int64) (*CachedPosition, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPositionKey, sessionID)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var pos CachedPosition
	if err := json.Unmarshal([]byte(data), &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}
