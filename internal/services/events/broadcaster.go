package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nightline-game/nightline/pkg/callflow"
)

// Broadcaster publishes call-flow events to Redis Pub/Sub for SSE
// distribution. Each session gets its own channel so SSE consumers only
// receive events for the session they watch.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Channel returns the Pub/Sub channel name for a session.
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-events:%s", sessionID.String())
}

// Publish sends one engine event to the session's channel.
func (b *Broadcaster) Publish(ctx context.Context, sessionID uuid.UUID, ev callflow.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", ev.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := Channel(sessionID)
	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", ev.Type,
		"call_id", ev.CallID)

	return nil
}

// Listener returns a callflow listener that publishes every engine event
// for the session. Publish failures are logged, never surfaced; a dead
// broadcaster must not stall the state machine.
func (b *Broadcaster) Listener(sessionID uuid.UUID) callflow.Listener {
	return func(ev callflow.Event) {
		_ = b.Publish(context.Background(), sessionID, ev)
	}
}

// Subscribe opens a Pub/Sub subscription for a session's events. The caller
// owns the returned PubSub and must Close it.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID uuid.UUID) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(sessionID))
}
