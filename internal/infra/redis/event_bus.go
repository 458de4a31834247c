package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const eventChannelPrefix = "quiz:attempt:events:"

// EventBus relays attempt events between service instances over Redis
// pub/sub. Every instance publishes to the bus and runs Relay to feed its
// local subscribers, so a websocket connected to one instance sees saves
// handled by another.
type EventBus struct {
	client *redis.Client
	log    *slog.Logger
}

func NewEventBus(client *redis.Client, log *slog.Logger) *EventBus {
	return &EventBus{client: client, log: log}
}

// Publish implements app.EventPublisher.
func (b *EventBus) Publish(ctx context.Context, ev domain.AttemptEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, eventChannelPrefix+ev.AttemptID, payload).Err(); err != nil {
		return unavailable("publish event", err)
	}
	return nil
}

// Relay forwards every event on the bus to feed until ctx is cancelled.
// ready, if non-nil, is closed once the subscription is confirmed.
func (b *EventBus) Relay(ctx context.Context, feed *app.Feed, ready chan<- struct{}) error {
	sub := b.client.PSubscribe(ctx, eventChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return unavailable("subscribe events", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.AttemptEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("dropping malformed attempt event", "channel", msg.Channel, "error", err)
				continue
			}
			if ev.AttemptID == "" {
				ev.AttemptID = strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			}
			feed.Publish(ev)
		}
	}
}
