// Package store provides typed accessors over the generated sqlc
// queries, mapping row-shaped sqlc types onto the domain types in
// internal/model and translating pgx.ErrNoRows into ErrNotFound.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"sqlrag.app/engine/core/db/sqlc"
	"sqlrag.app/engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store provides typed accessors over the underlying sqlc queries. A
// Store can be built from either a pooled *sqlc.Queries or one scoped
// to a transaction via db.WithTx.
type Store struct {
	queries *sqlc.Queries
}

func New(queries *sqlc.Queries) *Store {
	return &Store{queries: queries}
}

// --- Connections -------------------------------------------------------

func (s *Store) GetConnection(ctx context.Context, id int64) (model.Connection, error) {
	row, err := s.queries.GetConnection(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Connection{}, ErrNotFound
		}
		return model.Connection{}, err
	}
	return model.Connection{
		ID:             row.ID,
		Name:           row.Name,
		Dialect:        row.Dialect,
		LastModifiedAt: row.LastModifiedAt,
	}, nil
}

// GetConnectionEncryptedDSN returns the raw, still-encrypted DSN
// column for a connection. Callers must pass it through a
// CredentialDecryptor before dialing the target database.
func (s *Store) GetConnectionEncryptedDSN(ctx context.Context, id int64) (string, error) {
	row, err := s.queries.GetConnection(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return row.DsnEncrypted, nil
}

// --- Scans ---------------------------------------------------------------

func (s *Store) ListScansForConnections(ctx context.Context, connectionIDs []int64) ([]model.Scan, error) {
	rows, err := s.queries.ListScansForConnections(ctx, connectionIDs)
	if err != nil {
		return nil, err
	}
	out := make([]model.Scan, 0, len(rows))
	for _, r := range rows {
		out = append(out, scanFromRow(r))
	}
	return out, nil
}

func (s *Store) ListStaleRunningScans(ctx context.Context, connectionIDs []int64, cutoff time.Time) ([]model.Scan, error) {
	rows, err := s.queries.ListStaleRunningScans(ctx, connectionIDs, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]model.Scan, 0, len(rows))
	for _, r := range rows {
		out = append(out, scanFromRow(r))
	}
	return out, nil
}

func (s *Store) CountCatalogRowsForScan(ctx context.Context, scanID int64) (int64, error) {
	return s.queries.CountCatalogRowsForScan(ctx, scanID)
}

func (s *Store) PromoteScanCompleted(ctx context.Context, scanID int64, finishedAt time.Time) error {
	return s.queries.PromoteScanCompleted(ctx, scanID, finishedAt)
}

func (s *Store) PromoteScanFailed(ctx context.Context, scanID int64, finishedAt time.Time, reason string) error {
	return s.queries.PromoteScanFailed(ctx, scanID, finishedAt, reason)
}

func scanFromRow(r sqlc.Scan) model.Scan {
	return model.Scan{
		ID:           r.ID,
		ConnectionID: r.ConnectionID,
		Status:       model.ScanStatus(r.Status),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		ErrorMessage: r.ErrorMessage,
	}
}

// --- Catalog ---------------------------------------------------------------
//
// Catalog rows are returned in their flat, DB-normalised sqlc shape.
// internal/schemacontext is responsible for joining them (by TableID)
// into the nested model.SchemaSnapshot the Planner and Responder see;
// the store layer itself has no opinion on that assembly.

func (s *Store) ListCatalogTablesForScans(ctx context.Context, scanIDs []int64) ([]sqlc.CatalogTable, error) {
	return s.queries.ListCatalogTablesForScans(ctx, scanIDs)
}

func (s *Store) ListCatalogColumnsForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogColumn, error) {
	return s.queries.ListCatalogColumnsForTables(ctx, tableIDs)
}

func (s *Store) ListCatalogConstraintsForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogConstraint, error) {
	return s.queries.ListCatalogConstraintsForTables(ctx, tableIDs)
}

func (s *Store) ListCatalogIndexesForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogIndex, error) {
	return s.queries.ListCatalogIndexesForTables(ctx, tableIDs)
}

func (s *Store) ListCatalogSamplesForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogSample, error) {
	return s.queries.ListCatalogSamplesForTables(ctx, tableIDs)
}

// --- Predefined queries ------------------------------------------------

func (s *Store) ListPredefinedQueries(ctx context.Context) ([]model.PredefinedQuery, error) {
	rows, err := s.queries.ListPredefinedQueries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.PredefinedQuery, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.PredefinedQuery{
			ID:           r.ID,
			Name:         r.Name,
			Description:  r.Description,
			SQLTemplate:  r.SQLTemplate,
			ConnectionID: r.ConnectionID,
		})
	}
	return out, nil
}

// --- Embeddings --------------------------------------------------------

func (s *Store) UpsertEmbeddingItem(ctx context.Context, item model.EmbeddingItem) error {
	return s.queries.UpsertEmbeddingItem(ctx, sqlc.EmbeddingItem{
		ItemType:     string(item.ItemType),
		ItemID:       item.ItemID,
		ConnectionID: item.ConnectionID,
		ScanID:       item.ScanID,
		ContentHash:  item.ContentHash,
		Embedding:    item.Embedding,
		UpdatedAt:    item.UpdatedAt,
	})
}

func (s *Store) DeleteEmbeddingItems(ctx context.Context, itemType model.EmbeddingItemType, itemIDs []string) error {
	return s.queries.DeleteEmbeddingItems(ctx, string(itemType), itemIDs)
}

func (s *Store) GetEmbeddingContentHashes(ctx context.Context, itemType model.EmbeddingItemType, itemIDs []string) (map[string]string, error) {
	return s.queries.GetEmbeddingContentHashes(ctx, string(itemType), itemIDs)
}

func (s *Store) SearchEmbeddingsByDistance(ctx context.Context, query []float32, limit int) ([]model.RetrievedCandidate, error) {
	rows, err := s.queries.SearchEmbeddingsByDistance(ctx, query, int32(limit))
	if err != nil {
		return nil, err
	}
	out := make([]model.RetrievedCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.RetrievedCandidate{
			EmbeddingItem: model.EmbeddingItem{
				ItemType:     model.EmbeddingItemType(r.ItemType),
				ItemID:       r.ItemID,
				ConnectionID: r.ConnectionID,
				ScanID:       r.ScanID,
				ContentHash:  r.ContentHash,
				Embedding:    r.Embedding,
				UpdatedAt:    r.UpdatedAt,
			},
			Distance: r.Distance,
		})
	}
	return out, nil
}
