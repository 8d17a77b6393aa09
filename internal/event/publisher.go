package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Publisher is what the worker depends on to announce transitions.
type Publisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent)
}

// RedisPublisher publishes status events on the fanout channel. It
// owns its connection; reconnecting means building a new publisher,
// not mutating shared state.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher() *RedisPublisher {
	return &RedisPublisher{
		rdb: redis.NewClient(&redis.Options{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		}),
	}
}

// PublishStatus is best-effort: a lost notification never fails the
// task that produced it, so errors are only logged.
func (p *RedisPublisher) PublishStatus(ctx context.Context, ev StatusEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("Failed to marshal status event", zap.Error(err), zap.String("fileID", ev.FileID))
		return
	}

	err = p.rdb.Publish(ctx, ChannelFileEvents, payload).Err()
	if err != nil {
		zap.L().Error("Failed to publish status event",
			zap.Error(err),
			zap.String("fileID", ev.FileID),
			zap.String("status", ev.Status))
		return
	}

	zap.L().Debug("Published status event",
		zap.String("fileID", ev.FileID),
		zap.String("status", ev.Status))
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
