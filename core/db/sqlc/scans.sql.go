package sqlc

import (
	"context"
	"time"
)

const listScansForConnections = `
SELECT id, connection_id, status, started_at, finished_at, error_message
FROM scans
WHERE connection_id = ANY($1)
  AND status IN ('completed', 'running')
ORDER BY connection_id,
         finished_at DESC NULLS LAST,
         started_at DESC
`

func (q *Queries) ListScansForConnections(ctx context.Context, connectionIDs []int64) ([]Scan, error) {
	rows, err := q.db.Query(ctx, listScansForConnections, connectionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var s Scan
		if err := rows.Scan(&s.ID, &s.ConnectionID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const listStaleRunningScans = `
SELECT id, connection_id, status, started_at, finished_at, error_message
FROM scans
WHERE connection_id = ANY($1)
  AND status = 'running'
  AND started_at < $2
`

// ListStaleRunningScans finds scans in the given connections still
// marked "running" that started before cutoff. The Scan Status
// Reconciler uses this to find scans whose scanner process died
// without reporting a terminal status.
func (q *Queries) ListStaleRunningScans(ctx context.Context, connectionIDs []int64, cutoff time.Time) ([]Scan, error) {
	rows, err := q.db.Query(ctx, listStaleRunningScans, connectionIDs, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var s Scan
		if err := rows.Scan(&s.ID, &s.ConnectionID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const countCatalogRowsForScan = `
SELECT count(*) FROM catalog_tables WHERE scan_id = $1
`

func (q *Queries) CountCatalogRowsForScan(ctx context.Context, scanID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countCatalogRowsForScan, scanID).Scan(&n)
	return n, err
}

// promoteScanCompleted is conditioned on status = 'running' so a
// concurrent reconciler run cannot re-promote a scan that a second
// pass already finished differently; see the idempotency property in
// internal/schemacontext's reconciler tests.
const promoteScanCompleted = `
UPDATE scans SET status = 'completed', finished_at = $2, error_message = NULL
WHERE id = $1 AND status = 'running'
`

func (q *Queries) PromoteScanCompleted(ctx context.Context, id int64, finishedAt time.Time) error {
	_, err := q.db.Exec(ctx, promoteScanCompleted, id, finishedAt)
	return err
}

const promoteScanFailed = `
UPDATE scans SET status = 'failed', finished_at = $2, error_message = $3
WHERE id = $1 AND status = 'running'
`

func (q *Queries) PromoteScanFailed(ctx context.Context, id int64, finishedAt time.Time, message string) error {
	_, err := q.db.Exec(ctx, promoteScanFailed, id, finishedAt, message)
	return err
}
