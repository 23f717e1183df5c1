package syncjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runListener(t *testing.T, events []Event, closeAfter bool) (displayed []Event, reloads int, err error) {
	t.Helper()

	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	if closeAfter {
		close(ch)
	}

	l := NewListener(
		func(ev Event) { displayed = append(displayed, ev) },
		func(ctx context.Context) error { reloads++; return nil },
		testLogger(),
	)
	err = l.Run(context.Background(), ch)
	return displayed, reloads, err
}

func TestListenerTerminalEventReloadsOnce(t *testing.T) {
	events := []Event{{1, 5}, {3, 5}, {5, 5}}

	displayed, reloads, err := runListener(t, events, false)
	require.NoError(t, err)

	// Three visible updates, reload triggered only after the third.
	assert.Equal(t, events, displayed)
	assert.Equal(t, 1, reloads)
}

func TestListenerIgnoresRegressions(t *testing.T) {
	events := []Event{{2, 4}, {1, 4}, {4, 4}}

	displayed, reloads, err := runListener(t, events, false)
	require.NoError(t, err)

	assert.Equal(t, []Event{{2, 4}, {4, 4}}, displayed)
	assert.Equal(t, 1, reloads)
}

func TestListenerEmptyJobIsImmediatelyTerminal(t *testing.T) {
	displayed, reloads, err := runListener(t, []Event{{0, 0}}, false)
	require.NoError(t, err)

	assert.Len(t, displayed, 1)
	assert.Equal(t, 1, reloads)
}

func TestListenerChannelClosedBeforeTerminal(t *testing.T) {
	_, reloads, err := runListener(t, []Event{{1, 3}}, true)

	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, 0, reloads)
}

func TestListenerContextCancelled(t *testing.T) {
	ch := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())

	l := NewListener(nil, func(ctx context.Context) error { return nil }, testLogger())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, ch) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on context cancellation")
	}
}

func TestListenerReloadErrorPropagates(t *testing.T) {
	ch := make(chan Event, 1)
	ch <- Event{2, 2}

	reloadErr := errors.New("entry reload failed")
	l := NewListener(nil, func(ctx context.Context) error { return reloadErr }, testLogger())

	err := l.Run(context.Background(), ch)
	assert.ErrorIs(t, err, reloadErr)
}

func TestListenerDropsEventsBeyondTotal(t *testing.T) {
	events := []Event{{3, 2}, {2, 2}}

	displayed, reloads, err := runListener(t, events, false)
	require.NoError(t, err)

	assert.Equal(t, []Event{{2, 2}}, displayed)
	assert.Equal(t, 1, reloads)
}
