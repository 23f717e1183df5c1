package syncjob

import (
	"context"
	"fmt"
	"log/slog"
)

// Invoker issues one remote call for a single order ID against the named
// seller configuration. Calls are at-most-once; the dispatcher never retries
// a failed item within the same batch.
type Invoker interface {
	Invoke(ctx context.Context, configName, orderID string) error
}

// ProgressPublisher emits (progress, total) events on a named channel.
type ProgressPublisher interface {
	Publish(ctx context.Context, channel string, progress, total int) error
}

// ItemResult is the outcome of dispatching one order ID.
type ItemResult struct {
	OrderID string
	Err     error
}

// Outcome aggregates the per-item results of one dispatched batch.
type Outcome struct {
	Results []ItemResult
}

// Succeeded returns the number of items that dispatched without error.
func (o Outcome) Succeeded() int {
	n := 0
	for _, r := range o.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of items whose remote call returned an error.
func (o Outcome) Failed() int {
	return len(o.Results) - o.Succeeded()
}

// Dispatcher runs a batch of order IDs strictly sequentially: item N+1's
// remote call does not begin until item N's call resolves. Sequential
// execution respects the marketplace rate limit.
type Dispatcher struct {
	invoker   Invoker
	publisher ProgressPublisher
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over the given invoker and publisher.
func NewDispatcher(invoker Invoker, publisher ProgressPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		invoker:   invoker,
		publisher: publisher,
		logger:    logger,
	}
}

// Run dispatches the batch against configName and publishes one progress
// event per completed item on channel. A failing item is recorded and does
// not abort the batch. An empty batch publishes the terminal (0, 0) event
// immediately. If ctx is cancelled mid-batch the remaining items are marked
// failed with the context error and no terminal event is published; the
// owning entry stays locked until a manual reset.
func (d *Dispatcher) Run(ctx context.Context, channel, configName string, batch []string) Outcome {
	total := len(batch)
	outcome := Outcome{Results: make([]ItemResult, 0, total)}

	if total == 0 {
		d.publishProgress(ctx, channel, 0, 0)
		return outcome
	}

	for i, orderID := range batch {
		if err := ctx.Err(); err != nil {
			for _, remaining := range batch[i:] {
				outcome.Results = append(outcome.Results, ItemResult{
					OrderID: remaining,
					Err:     fmt.Errorf("dispatch aborted: %w", err),
				})
			}
			d.logger.Warn("Batch dispatch aborted",
				slog.String("channel", channel),
				slog.Int("dispatched", i),
				slog.Int("total", total),
				slog.String("error", err.Error()),
			)
			return outcome
		}

		err := d.invoker.Invoke(ctx, configName, orderID)
		if err != nil {
			d.logger.Error("Item dispatch failed",
				slog.String("channel", channel),
				slog.String("order_id", orderID),
				slog.String("config", configName),
				slog.String("error", err.Error()),
			)
		}
		outcome.Results = append(outcome.Results, ItemResult{OrderID: orderID, Err: err})

		d.publishProgress(ctx, channel, i+1, total)
	}

	d.logger.Info("Batch dispatch finished",
		slog.String("channel", channel),
		slog.Int("succeeded", outcome.Succeeded()),
		slog.Int("failed", outcome.Failed()),
	)

	return outcome
}

// publishProgress emits one event. The event stream is a liveness signal
// only, so a publish failure is logged and dispatch continues.
func (d *Dispatcher) publishProgress(ctx context.Context, channel string, progress, total int) {
	if err := d.publisher.Publish(ctx, channel, progress, total); err != nil {
		d.logger.Warn("Failed to publish progress event",
			slog.String("channel", channel),
			slog.Int("progress", progress),
			slog.Int("total", total),
			slog.String("error", err.Error()),
		)
	}
}
