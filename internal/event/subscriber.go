package event

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Relay is where received events get handed off, grouped by file
// identity. The websocket hub implements it.
type Relay interface {
	Broadcast(fileID string, payload []byte)
}

// Subscriber consumes the fanout channel and relays every event to
// the local hub. Each API instance runs its own subscriber so all of
// them learn of every transition.
type Subscriber struct {
	rdb   *redis.Client
	relay Relay
}

func NewSubscriber(relay Relay) *Subscriber {
	return &Subscriber{
		rdb: redis.NewClient(&redis.Options{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		}),
		relay: relay,
	}
}

// Run blocks until ctx is cancelled. Events for one file arrive in
// publish order because the worker publishes a record's transitions
// sequentially and redis pub/sub preserves per-connection order.
func (s *Subscriber) Run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, ChannelFileEvents)
	defer pubsub.Close()

	zap.L().Info("Notification relay subscribed", zap.String("channel", ChannelFileEvents))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}

			var ev StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				zap.L().Warn("Dropping malformed status event", zap.Error(err))
				continue
			}

			s.relay.Broadcast(ev.FileID, []byte(msg.Payload))

			zap.L().Debug("Relayed status event",
				zap.String("fileID", ev.FileID),
				zap.String("status", ev.Status))
		}
	}
}

func (s *Subscriber) Close() error {
	return s.rdb.Close()
}
