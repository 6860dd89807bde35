package websocket

import (
	"context"
	"fmt"

	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes room notifications on Redis PubSub where every
// instance's Hub picks them up.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Publish(ctx context.Context, room string, note model.Notification) error {
	data, err := EncodeRoomMessage(room, note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.rdb.Publish(ctx, config.CacheKey.RoomChannel(room), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", room, err)
	}
	return nil
}
