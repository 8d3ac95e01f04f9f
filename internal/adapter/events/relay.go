package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

const relayBuffer = 256

// RedisRelay shares a Bus with other processes through a Redis pub/sub channel.
// Local events go out; events from other origins come back in.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	bus     *Bus
	logger  *slog.Logger
	ready   chan struct{}
}

// NewRedisRelay creates a relay between bus and channel
func NewRedisRelay(client redis.UniversalClient, channel string, bus *Bus, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		bus:     bus,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the Redis subscription is confirmed
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run relays until ctx is cancelled
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	local, cancel := r.bus.Subscribe(relayBuffer)
	defer cancel()

	remote := pubsub.Channel()
	close(r.ready)
	r.logger.Info("event relay started", "channel", r.channel, "origin", r.bus.Origin())

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-local:
			if !ok {
				return nil
			}
			if event.Origin != r.bus.Origin() {
				continue
			}
			r.forward(ctx, event)

		case msg, ok := <-remote:
			if !ok {
				return nil
			}
			var event domain.TransitionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("ignoring malformed relayed event", "error", err)
				continue
			}
			if event.Origin == r.bus.Origin() {
				continue
			}
			r.bus.Inject(event)
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, event domain.TransitionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to encode transition event", "transaction_id", event.TransactionID, "error", err)
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("failed to relay transition event", "transaction_id", event.TransactionID, "error", err)
	}
}
