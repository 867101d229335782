package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"sqlrag.app/engine/core/db/sqlc"
	"sqlrag.app/engine/internal/model"
)

// ReindexStore is the store surface the reindex pass reads catalog
// entities from and writes embedding rows to.
type ReindexStore interface {
	ListCatalogTablesForScans(ctx context.Context, scanIDs []int64) ([]sqlc.CatalogTable, error)
	ListCatalogColumnsForTables(ctx context.Context, tableIDs []int64) ([]sqlc.CatalogColumn, error)
	GetEmbeddingContentHashes(ctx context.Context, itemType model.EmbeddingItemType, itemIDs []string) (map[string]string, error)
	DeleteEmbeddingItems(ctx context.Context, itemType model.EmbeddingItemType, itemIDs []string) error
	UpsertEmbeddingItem(ctx context.Context, item model.EmbeddingItem) error
}

type pendingDocument struct {
	itemType     model.EmbeddingItemType
	itemID       string
	connectionID int64
	scanID       *int64
	canonical    string
	hash         string
}

// Reindex enumerates the catalog tables and columns belonging to
// scanIDs, builds a canonical document per entity, hashes it, skips
// anything unchanged, deletes and reinserts the changed set, embeds
// the changed set in one batch, and returns the count of reindexed
// items. scanIDs must name the specific scans to reindex — an empty
// slice reindexes nothing, since the underlying catalog query scopes
// strictly to the ids given it. Callers resolve which scans are due
// (typically the scan id carried on a completed-scan queue message).
func (r *Retriever) Reindex(ctx context.Context, store ReindexStore, scanIDs []int64) (int, error) {
	tables, err := store.ListCatalogTablesForScans(ctx, scanIDs)
	if err != nil {
		return 0, fmt.Errorf("listing catalog tables: %w", err)
	}
	if len(tables) == 0 {
		return 0, nil
	}

	tableIDs := make([]int64, len(tables))
	for i, t := range tables {
		tableIDs[i] = t.ID
	}
	columns, err := store.ListCatalogColumnsForTables(ctx, tableIDs)
	if err != nil {
		return 0, fmt.Errorf("listing catalog columns: %w", err)
	}
	columnsByTable := make(map[int64][]sqlc.CatalogColumn, len(tables))
	for _, c := range columns {
		columnsByTable[c.TableID] = append(columnsByTable[c.TableID], c)
	}

	docs := make([]pendingDocument, 0, len(tables)+len(columns))
	for _, t := range tables {
		docs = append(docs, tableDocument(t))
		for _, c := range columnsByTable[t.ID] {
			docs = append(docs, columnDocument(t, c))
		}
	}

	changed, err := r.changedDocuments(ctx, store, docs)
	if err != nil {
		return 0, err
	}
	if len(changed) == 0 {
		return 0, nil
	}

	if err := r.commitChanged(ctx, store, changed); err != nil {
		return 0, err
	}
	return len(changed), nil
}

// changedDocuments groups docs by item type, fetches the stored hash
// per id, and keeps only those whose canonical hash differs (or has
// no prior row).
func (r *Retriever) changedDocuments(ctx context.Context, store ReindexStore, docs []pendingDocument) ([]pendingDocument, error) {
	byType := make(map[model.EmbeddingItemType][]pendingDocument)
	for _, d := range docs {
		byType[d.itemType] = append(byType[d.itemType], d)
	}

	changed := make([]pendingDocument, 0, len(docs))
	for itemType, group := range byType {
		ids := make([]string, len(group))
		for i, d := range group {
			ids[i] = d.itemID
		}
		existingHashes, err := store.GetEmbeddingContentHashes(ctx, itemType, ids)
		if err != nil {
			return nil, fmt.Errorf("loading existing content hashes for %s: %w", itemType, err)
		}
		for _, d := range group {
			if existingHashes[d.itemID] == d.hash {
				continue
			}
			changed = append(changed, d)
		}
	}
	return changed, nil
}

// commitChanged deletes the stale rows, embeds the changed documents
// in one batch, and upserts the refreshed embedding rows.
func (r *Retriever) commitChanged(ctx context.Context, store ReindexStore, changed []pendingDocument) error {
	byType := make(map[model.EmbeddingItemType][]string)
	for _, d := range changed {
		byType[d.itemType] = append(byType[d.itemType], d.itemID)
	}
	for itemType, ids := range byType {
		if err := store.DeleteEmbeddingItems(ctx, itemType, ids); err != nil {
			return fmt.Errorf("deleting stale embedding items for %s: %w", itemType, err)
		}
	}

	texts := make([]string, len(changed))
	for i, d := range changed {
		texts[i] = d.canonical
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding reindex batch: %w", err)
	}
	if len(vectors) != len(changed) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(changed))
	}

	now := time.Now()
	for i, d := range changed {
		err := store.UpsertEmbeddingItem(ctx, model.EmbeddingItem{
			ItemType:     d.itemType,
			ItemID:       d.itemID,
			ConnectionID: d.connectionID,
			ScanID:       d.scanID,
			ContentHash:  d.hash,
			Embedding:    vectors[i],
			UpdatedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("upserting embedding item %s: %w", d.itemID, err)
		}
	}
	return nil
}

func tableDocument(t sqlc.CatalogTable) pendingDocument {
	canonical := fmt.Sprintf("table %s.%s (%s): %s", t.Schema, t.Name, t.Type, t.Description)
	itemID := fmt.Sprintf("table:%d:%s.%s", t.ConnectionID, t.Schema, t.Name)
	scanID := t.ScanID
	return pendingDocument{
		itemType:     model.EmbeddingItemTable,
		itemID:       itemID,
		connectionID: t.ConnectionID,
		scanID:       &scanID,
		canonical:    canonical,
		hash:         hashDocument(canonical),
	}
}

func columnDocument(t sqlc.CatalogTable, c sqlc.CatalogColumn) pendingDocument {
	canonical := fmt.Sprintf("column %s.%s.%s %s nullable=%t %s", t.Schema, t.Name, c.Name, c.Type, c.Nullable, c.Annotations)
	itemID := fmt.Sprintf("column:%d:%s.%s.%s", t.ConnectionID, t.Schema, t.Name, c.Name)
	scanID := t.ScanID
	return pendingDocument{
		itemType:     model.EmbeddingItemColumn,
		itemID:       itemID,
		connectionID: t.ConnectionID,
		scanID:       &scanID,
		canonical:    canonical,
		hash:         hashDocument(canonical),
	}
}

func hashDocument(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
