package syncjob

import (
	"context"
	"errors"
	"testing"

	"github.com/ecomsync/paysync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlagStore struct {
	flags map[string]bool
	err   error
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{flags: make(map[string]bool)}
}

func (f *fakeFlagStore) AcquireInProgress(ctx context.Context, entryID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.flags[entryID] {
		return false, nil
	}
	f.flags[entryID] = true
	return true, nil
}

func (f *fakeFlagStore) ClearInProgress(ctx context.Context, entryID string) error {
	if f.err != nil {
		return f.err
	}
	f.flags[entryID] = false
	return nil
}

func TestGuardAcquireRelease(t *testing.T) {
	store := newFakeFlagStore()
	guard := NewGuard(store)
	ctx := context.Background()

	require.NoError(t, guard.Acquire(ctx, "PE-001"))

	// Second acquire on the same entry is rejected while the flag is held.
	err := guard.Acquire(ctx, "PE-001")
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)

	// Independent entries are not affected.
	require.NoError(t, guard.Acquire(ctx, "PE-002"))

	require.NoError(t, guard.Release(ctx, "PE-001"))
	assert.NoError(t, guard.Acquire(ctx, "PE-001"))
}

func TestGuardResetForcesUnlock(t *testing.T) {
	store := newFakeFlagStore()
	guard := NewGuard(store)
	ctx := context.Background()

	require.NoError(t, guard.Acquire(ctx, "PE-001"))

	// Orphaned job: no terminal event ever arrives. Manual reset is the only
	// way out.
	require.NoError(t, guard.Reset(ctx, "PE-001"))
	assert.NoError(t, guard.Acquire(ctx, "PE-001"))
}

func TestGuardStoreErrors(t *testing.T) {
	store := newFakeFlagStore()
	store.err = errors.New("connection reset")
	guard := NewGuard(store)
	ctx := context.Background()

	err := guard.Acquire(ctx, "PE-001")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSyncInProgress)

	assert.Error(t, guard.Release(ctx, "PE-001"))
	assert.Error(t, guard.Reset(ctx, "PE-001"))
}
