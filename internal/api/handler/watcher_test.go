package handler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ecomsync/paysync/internal/syncjob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingSubscriber hands out one shared event channel and counts how many
// subscriptions have been released.
type trackingSubscriber struct {
	mu     sync.Mutex
	events chan syncjob.Event
	stops  int
}

func newTrackingSubscriber() *trackingSubscriber {
	return &trackingSubscriber{events: make(chan syncjob.Event)}
}

func (s *trackingSubscriber) Subscribe(_ context.Context, _ string) (<-chan syncjob.Event, func(), error) {
	return s.events, func() {
		s.mu.Lock()
		s.stops++
		s.mu.Unlock()
	}, nil
}

func (s *trackingSubscriber) stopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func newTestWatcher(store *fakeStore, sub *trackingSubscriber) *ProgressWatcher {
	return NewProgressWatcher(sub, store, slog.New(slog.DiscardHandler))
}

func TestWatcher_SurvivesRequestContext(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", true)
	sub := newTrackingSubscriber()
	w := newTestWatcher(store, sub)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Watch(ctx, "job-1", "chan-1", "PE-0001"))
	cancel()

	// The watch is not tied to the request; it keeps waiting for events.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sub.stopped())
	_, _, _, ok := w.Snapshot("job-1")
	assert.True(t, ok)
}

func TestWatcher_CancelEntryReleasesOrphanedWatch(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", true)
	sub := newTrackingSubscriber()
	w := newTestWatcher(store, sub)
	w.retention = 10 * time.Millisecond

	require.NoError(t, w.Watch(context.Background(), "job-1", "chan-1", "PE-0001"))
	require.NoError(t, w.Watch(context.Background(), "job-2", "chan-2", "PE-0002"))

	// The worker died without a terminal event; the operator resets PE-0001.
	w.CancelEntry("PE-0001")

	require.Eventually(t, func() bool {
		return sub.stopped() == 1
	}, time.Second, 5*time.Millisecond, "cancelled watch must release its subscription")

	require.Eventually(t, func() bool {
		_, _, _, ok := w.Snapshot("job-1")
		return !ok
	}, time.Second, 5*time.Millisecond, "cancelled watch snapshot must be pruned")

	// The other entry's watch is untouched.
	_, _, _, ok := w.Snapshot("job-2")
	assert.True(t, ok)
	assert.Equal(t, 1, sub.stopped())
}

func TestWatcher_TimeoutBoundsOrphanedWatch(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", true)
	sub := newTrackingSubscriber()
	w := newTestWatcher(store, sub)
	w.watchTimeout = 20 * time.Millisecond
	w.retention = 10 * time.Millisecond

	require.NoError(t, w.Watch(context.Background(), "job-1", "chan-1", "PE-0001"))

	require.Eventually(t, func() bool {
		return sub.stopped() == 1
	}, time.Second, 5*time.Millisecond, "timed-out watch must release its subscription")

	require.Eventually(t, func() bool {
		_, _, _, ok := w.Snapshot("job-1")
		return !ok
	}, time.Second, 5*time.Millisecond, "timed-out watch snapshot must be pruned")
}

func TestWatcher_TerminalEventPrunesSnapshotAfterRetention(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", false)
	sub := newTrackingSubscriber()
	w := newTestWatcher(store, sub)
	w.retention = 30 * time.Millisecond

	require.NoError(t, w.Watch(context.Background(), "job-1", "chan-1", "PE-0001"))

	sub.events <- syncjob.Event{Progress: 2, Total: 5}
	sub.events <- syncjob.Event{Progress: 5, Total: 5}

	require.Eventually(t, func() bool {
		_, _, done, ok := w.Snapshot("job-1")
		return ok && done
	}, time.Second, 5*time.Millisecond)

	progress, total, _, _ := w.Snapshot("job-1")
	assert.Equal(t, 5, progress)
	assert.Equal(t, 5, total)

	require.Eventually(t, func() bool {
		return sub.stopped() == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, _, _, ok := w.Snapshot("job-1")
		return !ok
	}, time.Second, 5*time.Millisecond, "finished watch snapshot must expire")
}

func TestWatcher_WatchIsIdempotentPerJob(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", true)
	sub := newTrackingSubscriber()
	w := newTestWatcher(store, sub)

	require.NoError(t, w.Watch(context.Background(), "job-1", "chan-1", "PE-0001"))
	require.NoError(t, w.Watch(context.Background(), "job-1", "chan-1", "PE-0001"))

	w.mu.Lock()
	count := len(w.jobs)
	w.mu.Unlock()
	assert.Equal(t, 1, count)
}
