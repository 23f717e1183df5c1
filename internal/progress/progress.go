// Package progress carries sync job progress events over Redis pub/sub.
// Channels are named per job type and payment entry; payloads are small
// JSON documents with the current progress and total counts.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ecomsync/paysync/internal/syncjob"
	"github.com/redis/go-redis/v9"
)

// Publisher emits progress events. The worker service publishes one event
// per dispatched item.
type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewPublisher creates a publisher over an established Redis client.
func NewPublisher(rdb *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

// Publish sends one (progress, total) event on the named channel.
func (p *Publisher) Publish(ctx context.Context, channel string, progress, total int) error {
	payload, err := json.Marshal(syncjob.Event{Progress: progress, Total: total})
	if err != nil {
		return fmt.Errorf("failed to encode progress event: %w", err)
	}

	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}

	p.logger.Debug("Progress event published",
		slog.String("channel", channel),
		slog.Int("progress", progress),
		slog.Int("total", total),
	)

	return nil
}

// Subscriber adapts Redis pub/sub to the syncjob event stream.
type Subscriber struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewSubscriber creates a subscriber over an established Redis client.
func NewSubscriber(rdb *redis.Client, logger *slog.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, logger: logger}
}

// Subscribe opens a subscription on the named channel and returns a stream
// of decoded events plus a stop function. The stop function closes the
// underlying pub/sub; the event channel is closed once the subscription
// drains. Malformed payloads are logged and skipped.
func (s *Subscriber) Subscribe(ctx context.Context, channel string) (<-chan syncjob.Event, func(), error) {
	pubsub := s.rdb.Subscribe(ctx, channel)

	// Force the subscription to be established before returning so no event
	// published after Subscribe is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	events := make(chan syncjob.Event)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var ev syncjob.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Warn("Dropping malformed progress payload",
					slog.String("channel", channel),
					slog.String("payload", msg.Payload),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("Failed to close progress subscription",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}

	return events, stop, nil
}
