package schemacontext

import (
	"context"
	"fmt"
	"time"

	"sqlrag.app/engine/internal/model"
)

// scanFailureMessage is the fixed error text recorded on scans that
// timed out with nothing to show for it.
const scanFailureMessage = "scan did not complete within the expected window"

// ReconcileStore is the store surface the reconciler depends on.
type ReconcileStore interface {
	ListStaleRunningScans(ctx context.Context, connectionIDs []int64, cutoff time.Time) ([]model.Scan, error)
	CountCatalogRowsForScan(ctx context.Context, scanID int64) (int64, error)
	PromoteScanCompleted(ctx context.Context, scanID int64, finishedAt time.Time) error
	PromoteScanFailed(ctx context.Context, scanID int64, finishedAt time.Time, reason string) error
}

// Reconciler sweeps scans stuck in "running" and promotes each to a
// terminal state based solely on whether catalog rows exist for it —
// never on when or how many times the sweep observed it, so running
// it twice with no intervening writes is a no-op the second time.
type Reconciler struct {
	store ReconcileStore
	now   func() time.Time
}

func NewReconciler(store ReconcileStore) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Reconcile promotes every running scan in connectionIDs older than
// staleAfter: to completed if it has at least one catalog row,
// otherwise to failed with a fixed message.
func (r *Reconciler) Reconcile(ctx context.Context, connectionIDs []int64, staleAfter time.Duration) (promoted, failed int, err error) {
	cutoff := r.now().Add(-staleAfter)
	scans, err := r.store.ListStaleRunningScans(ctx, connectionIDs, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("listing stale running scans: %w", err)
	}

	for _, s := range scans {
		count, err := r.store.CountCatalogRowsForScan(ctx, s.ID)
		if err != nil {
			return promoted, failed, fmt.Errorf("counting catalog rows for scan %d: %w", s.ID, err)
		}
		now := r.now()
		if count > 0 {
			if err := r.store.PromoteScanCompleted(ctx, s.ID, now); err != nil {
				return promoted, failed, fmt.Errorf("promoting scan %d to completed: %w", s.ID, err)
			}
			promoted++
			continue
		}
		if err := r.store.PromoteScanFailed(ctx, s.ID, now, scanFailureMessage); err != nil {
			return promoted, failed, fmt.Errorf("promoting scan %d to failed: %w", s.ID, err)
		}
		failed++
	}

	return promoted, failed, nil
}
