package syncjob

import (
	"context"
	"fmt"

	"github.com/ecomsync/paysync/internal/domain"
)

// FlagStore persists the per-entry in-progress flag. AcquireInProgress must
// be atomic: it sets the flag only when it is currently clear and reports
// whether it did.
type FlagStore interface {
	AcquireInProgress(ctx context.Context, entryID string) (bool, error)
	ClearInProgress(ctx context.Context, entryID string) error
}

// Guard is the coarse mutual-exclusion mechanism for payment entries. At
// most one sync job runs per entry; everything mutating checks the flag
// first. If a job dies without a terminal event the entry stays locked until
// Reset is invoked: fail locked, never silently open.
type Guard struct {
	store FlagStore
}

// NewGuard creates a guard backed by the given flag store.
func NewGuard(store FlagStore) *Guard {
	return &Guard{store: store}
}

// Acquire sets the in-progress flag for entryID. It returns
// domain.ErrSyncInProgress when the flag is already held.
func (g *Guard) Acquire(ctx context.Context, entryID string) error {
	ok, err := g.store.AcquireInProgress(ctx, entryID)
	if err != nil {
		return fmt.Errorf("failed to acquire in-progress flag: %w", err)
	}
	if !ok {
		return domain.ErrSyncInProgress
	}
	return nil
}

// Release clears the in-progress flag after a terminal progress event.
func (g *Guard) Release(ctx context.Context, entryID string) error {
	if err := g.store.ClearInProgress(ctx, entryID); err != nil {
		return fmt.Errorf("failed to release in-progress flag: %w", err)
	}
	return nil
}

// Reset force-clears the flag of an orphaned entry. Same effect as Release;
// kept separate because it is an explicit operator action, not part of the
// normal job lifecycle.
func (g *Guard) Reset(ctx context.Context, entryID string) error {
	if err := g.store.ClearInProgress(ctx, entryID); err != nil {
		return fmt.Errorf("failed to reset in-progress flag: %w", err)
	}
	return nil
}
