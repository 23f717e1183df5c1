package syncjob

import (
	"context"
	"errors"
	"log/slog"
)

// Event is one progress report from an active sync job. Progress is
// monotonically non-decreasing and never exceeds Total.
type Event struct {
	Progress int `json:"progress"`
	Total    int `json:"total"`
}

// Done reports whether the event is terminal.
func (e Event) Done() bool {
	return e.Progress == e.Total
}

// Subscriber provides a scoped subscription to a named progress channel.
// The returned stop function releases the subscription; callers must invoke
// it when the listener returns so registrations never outlive their view.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan Event, func(), error)
}

// ErrChannelClosed is returned when the event stream ends before a terminal
// event arrived. The owning entry stays locked in that case.
var ErrChannelClosed = errors.New("progress channel closed before completion")

// Listener consumes progress events for one sync job. Each accepted event is
// handed to the display callback; the terminal event additionally triggers
// the reload callback exactly once and stops the listener. Events are a
// liveness signal only; reload fetches the authoritative state.
type Listener struct {
	display func(Event)
	reload  func(context.Context) error
	logger  *slog.Logger
}

// NewListener creates a listener. display may be nil; reload must not be.
func NewListener(display func(Event), reload func(context.Context) error, logger *slog.Logger) *Listener {
	return &Listener{
		display: display,
		reload:  reload,
		logger:  logger,
	}
}

// Run consumes events until a terminal event, channel close, or context
// cancellation. Regressing events (progress below the last seen value) are
// dropped. Returns nil after the terminal event has been handled.
func (l *Listener) Run(ctx context.Context, events <-chan Event) error {
	last := -1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return ErrChannelClosed
			}
			if ev.Progress < last || ev.Progress > ev.Total {
				l.logger.Warn("Dropping out-of-order progress event",
					slog.Int("progress", ev.Progress),
					slog.Int("total", ev.Total),
					slog.Int("last", last),
				)
				continue
			}
			last = ev.Progress

			if l.display != nil {
				l.display(ev)
			}

			if ev.Done() {
				if err := l.reload(ctx); err != nil {
					return err
				}
				return nil
			}
		}
	}
}
