package hub

import (
	"Wayfarer/internal/event"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayChannel = "wayfarer:ws:events"

// Relay fans room events out to other instances.
type Relay interface {
	Publish(ctx context.Context, ev event.WsEvent) error
	// Subscribe delivers events published by other instances until ctx is done.
	Subscribe(ctx context.Context, deliver func(event.WsEvent)) error
	Close() error
}

type relayEnvelope struct {
	Origin string        `json:"origin"`
	Event  event.WsEvent `json:"event"`
}

// RedisRelay relays events over a redis pub/sub channel. Each instance skips
// its own publications since it already delivered them locally.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

func NewRedisRelay(client *redis.Client, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: relayChannel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev event.WsEvent) error {
	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: ev})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(event.WsEvent)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, ev, ok := r.decode(msg.Payload)
			if !ok || origin == r.origin {
				continue
			}
			deliver(ev)
		}
	}
}

func (r *RedisRelay) decode(payload string) (string, event.WsEvent, bool) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("malformed relay message", zap.Error(err))
		return "", event.WsEvent{}, false
	}
	return env.Origin, env.Event, true
}

// Close is a no-op; the redis client is owned by the container.
func (r *RedisRelay) Close() error {
	return nil
}
