package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

// RedisRelay shares events between API instances over Redis pub/sub.
// Events published here go to Redis; events received from other instances
// are re-published on the local bus.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Publisher
	origin  string
	logger  *logging.Logger
}

type relayMessage struct {
	Origin string   `json:"origin"`
	Event  Envelope `json:"event"`
}

// NewRedisRelay creates a relay on channel. Remote events are delivered to local.
func NewRedisRelay(client *redis.Client, channel string, local Publisher, logger *logging.Logger) *RedisRelay {
	if client == nil {
		panic("events: redis client required")
	}
	if local == nil {
		panic("events: local publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Publish sends env to the other instances.
func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(relayMessage{Origin: r.origin, Event: env})
	if err != nil {
		return fmt.Errorf("events: marshal relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}

// Run forwards remote events to the local publisher until ctx is done.
// ready, when non-nil, is closed once the subscription is live.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("events: redis subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("event relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("event relay: malformed message", "error", err)
		return
	}
	if msg.Origin == r.origin {
		return
	}
	if err := r.local.Publish(ctx, msg.Event); err != nil {
		r.logger.Error("event relay: local publish failed", "error", err, "event_id", msg.Event.ID)
	}
}
