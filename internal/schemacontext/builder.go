// Package schemacontext builds the bounded per-connection schema
// snapshot and allowlist the Planner and Validator consume, and
// reconciles stale scan rows along the way.
package schemacontext

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sqlrag.app/engine/core/db/sqlc"
	"sqlrag.app/engine/internal/model"
)

// Limits bounds every list the builder materialises; exceeding a
// limit truncates in declaration order rather than erroring.
type Limits struct {
	Tables      int
	Columns     int
	SampleRows  int
	Constraints int
	Indexes     int
}

// Store is the subset of internal/store.Store the builder needs.
type Store interface {
	ListScansForConnections(ctx context.Context, connectionIDs []int64) ([]model.Scan, error)
	CountCatalogRowsForScan(ctx context.Context, scanID int64) (int64, error)
	PromoteScanCompleted(ctx context.Context, scanID int64, finishedAt time.Time) error
	ListCatalogTablesForScans(ctx context.Context, scanIDs []int64) ([]sqlc.CatalogTable, error)
	ListCatalogColumnsForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogColumn, error)
	ListCatalogConstraintsForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogConstraint, error)
	ListCatalogIndexesForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogIndex, error)
	ListCatalogSamplesForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogSample, error)
}

type Builder struct {
	store Store
	now   func() time.Time
}

func NewBuilder(store Store) *Builder {
	return &Builder{store: store, now: time.Now}
}

// ErrNoCatalog is returned when none of the requested connections
// yield a usable scan.
var ErrNoCatalog = fmt.Errorf("no usable catalog for the requested connections")

// Build resolves the latest usable scan per connection (promoting any
// running-but-populated scan to completed as a side effect), loads the
// bounded catalog for those scans, and returns the snapshot plus the
// per-connection allowlist. Returns ErrNoCatalog if no connection
// contributes a scan.
func (b *Builder) Build(ctx context.Context, connectionIDs []int64, limits Limits) (model.SchemaSnapshot, model.Allowlist, error) {
	scans, err := b.store.ListScansForConnections(ctx, connectionIDs)
	if err != nil {
		return model.SchemaSnapshot{}, nil, fmt.Errorf("listing scans: %w", err)
	}

	// Scans arrive ordered per connection by (finished_at desc nulls
	// last, started_at desc); group preserving that order so "first
	// completed, else first populated running" is a simple scan.
	byConnection := make(map[int64][]model.Scan)
	var order []int64
	for _, s := range scans {
		if _, seen := byConnection[s.ConnectionID]; !seen {
			order = append(order, s.ConnectionID)
		}
		byConnection[s.ConnectionID] = append(byConnection[s.ConnectionID], s)
	}

	var chosenScanIDs []int64
	for _, connID := range order {
		scan, ok, err := b.chooseScan(ctx, byConnection[connID])
		if err != nil {
			return model.SchemaSnapshot{}, nil, err
		}
		if ok {
			chosenScanIDs = append(chosenScanIDs, scan.ID)
		}
	}

	if len(chosenScanIDs) == 0 {
		return model.SchemaSnapshot{}, nil, ErrNoCatalog
	}

	snapshot, err := b.loadSnapshot(ctx, chosenScanIDs, limits)
	if err != nil {
		return model.SchemaSnapshot{}, nil, err
	}

	allowlist := model.Allowlist{}
	for _, t := range snapshot.Tables {
		allowlist.Add(t.ConnectionID, strings.ToLower(t.Identifier()))
		allowlist.Add(t.ConnectionID, strings.ToLower(t.Name))
	}

	return snapshot, allowlist, nil
}

// chooseScan picks the first completed scan; failing that, the first
// running scan with at least one catalog row, promoting it to
// completed as a reconciliation side effect. scans is assumed
// pre-ordered by the caller's query.
func (b *Builder) chooseScan(ctx context.Context, scans []model.Scan) (model.Scan, bool, error) {
	for _, s := range scans {
		if s.Status == model.ScanStatusCompleted {
			return s, true, nil
		}
	}
	for _, s := range scans {
		if s.Status != model.ScanStatusRunning {
			continue
		}
		count, err := b.store.CountCatalogRowsForScan(ctx, s.ID)
		if err != nil {
			return model.Scan{}, false, fmt.Errorf("counting catalog rows for scan %d: %w", s.ID, err)
		}
		if count == 0 {
			continue
		}
		if err := b.store.PromoteScanCompleted(ctx, s.ID, b.now()); err != nil {
			return model.Scan{}, false, fmt.Errorf("promoting scan %d: %w", s.ID, err)
		}
		s.Status = model.ScanStatusCompleted
		return s, true, nil
	}
	return model.Scan{}, false, nil
}

func (b *Builder) loadSnapshot(ctx context.Context, scanIDs []int64, limits Limits) (model.SchemaSnapshot, error) {
	tableRows, err := b.store.ListCatalogTablesForScans(ctx, scanIDs)
	if err != nil {
		return model.SchemaSnapshot{}, fmt.Errorf("listing catalog tables: %w", err)
	}

	perConnectionCount := make(map[int64]int)
	var keptTableIDs []int64
	kept := make(map[int64]*model.CatalogTable)
	var orderedIDs []int64

	for _, row := range tableRows {
		if limits.Tables > 0 && perConnectionCount[row.ConnectionID] >= limits.Tables {
			continue
		}
		perConnectionCount[row.ConnectionID]++
		keptTableIDs = append(keptTableIDs, row.ID)
		orderedIDs = append(orderedIDs, row.ID)
		kept[row.ID] = &model.CatalogTable{
			ScanID:       row.ScanID,
			ConnectionID: row.ConnectionID,
			Schema:       row.Schema,
			Name:         row.Name,
			Type:         row.Type,
			Description:  row.Description,
			Annotations:  row.Annotations,
		}
	}

	if len(keptTableIDs) == 0 {
		return model.SchemaSnapshot{}, nil
	}

	if err := b.attachColumns(ctx, keptTableIDs, limits.Columns, kept); err != nil {
		return model.SchemaSnapshot{}, err
	}
	if err := b.attachSamples(ctx, keptTableIDs, limits.SampleRows, kept); err != nil {
		return model.SchemaSnapshot{}, err
	}

	constraints, err := b.loadConstraints(ctx, keptTableIDs, limits.Constraints, kept)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}
	indexes, err := b.loadIndexes(ctx, keptTableIDs, limits.Indexes, kept)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}

	tables := make([]model.CatalogTable, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		tables = append(tables, *kept[id])
	}

	return model.SchemaSnapshot{Tables: tables, Constraints: constraints, Indexes: indexes}, nil
}

func (b *Builder) attachColumns(ctx context.Context, tableIDs []int64, limit int, kept map[int64]*model.CatalogTable) error {
	rows, err := b.store.ListCatalogColumnsForTables(ctx, tableIDs)
	if err != nil {
		return fmt.Errorf("listing catalog columns: %w", err)
	}
	counts := make(map[int64]int)
	for _, r := range rows {
		t, ok := kept[r.TableID]
		if !ok {
			continue
		}
		if limit > 0 && counts[r.TableID] >= limit {
			continue
		}
		counts[r.TableID]++
		t.Columns = append(t.Columns, model.CatalogColumn{
			Name:        r.Name,
			Type:        r.Type,
			Nullable:    r.Nullable,
			Annotations: r.Annotations,
		})
	}
	return nil
}

func (b *Builder) attachSamples(ctx context.Context, tableIDs []int64, limit int, kept map[int64]*model.CatalogTable) error {
	rows, err := b.store.ListCatalogSamplesForTables(ctx, tableIDs)
	if err != nil {
		return fmt.Errorf("listing catalog samples: %w", err)
	}
	counts := make(map[int64]int)
	for _, r := range rows {
		t, ok := kept[r.TableID]
		if !ok {
			continue
		}
		if limit > 0 && counts[r.TableID] >= limit {
			continue
		}
		counts[r.TableID]++
		var decoded map[string]any
		if err := json.Unmarshal(r.RowJSON, &decoded); err != nil {
			continue
		}
		t.Samples = append(t.Samples, decoded)
	}
	return nil
}

func (b *Builder) loadConstraints(ctx context.Context, tableIDs []int64, limit int, kept map[int64]*model.CatalogTable) ([]model.CatalogConstraint, error) {
	rows, err := b.store.ListCatalogConstraintsForTables(ctx, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("listing catalog constraints: %w", err)
	}
	counts := make(map[int64]int)
	var out []model.CatalogConstraint
	for _, r := range rows {
		t, ok := kept[r.TableID]
		if !ok {
			continue
		}
		if limit > 0 && counts[r.TableID] >= limit {
			continue
		}
		counts[r.TableID]++
		out = append(out, model.CatalogConstraint{
			ScanID:     t.ScanID,
			Schema:     t.Schema,
			Table:      t.Name,
			Name:       r.Name,
			Type:       r.Type,
			Definition: r.Definition,
		})
	}
	return out, nil
}

func (b *Builder) loadIndexes(ctx context.Context, tableIDs []int64, limit int, kept map[int64]*model.CatalogTable) ([]model.CatalogIndex, error) {
	rows, err := b.store.ListCatalogIndexesForTables(ctx, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("listing catalog indexes: %w", err)
	}
	counts := make(map[int64]int)
	var out []model.CatalogIndex
	for _, r := range rows {
		t, ok := kept[r.TableID]
		if !ok {
			continue
		}
		if limit > 0 && counts[r.TableID] >= limit {
			continue
		}
		counts[r.TableID]++
		out = append(out, model.CatalogIndex{
			ScanID:     t.ScanID,
			Schema:     t.Schema,
			Table:      t.Name,
			Name:       r.Name,
			Definition: r.Definition,
			IsUnique:   r.IsUnique,
		})
	}
	return out, nil
}

