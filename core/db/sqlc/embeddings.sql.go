package sqlc

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

const upsertEmbeddingItem = `
INSERT INTO embedding_items (item_type, item_id, connection_id, scan_id, content_hash, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (item_type, item_id) DO UPDATE
SET connection_id = EXCLUDED.connection_id,
    scan_id       = EXCLUDED.scan_id,
    content_hash  = EXCLUDED.content_hash,
    embedding     = EXCLUDED.embedding,
    updated_at    = now()
`

func (q *Queries) UpsertEmbeddingItem(ctx context.Context, e EmbeddingItem) error {
	_, err := q.db.Exec(ctx, upsertEmbeddingItem,
		e.ItemType, e.ItemID, e.ConnectionID, e.ScanID, e.ContentHash, pgvector.NewVector(e.Embedding))
	return err
}

const deleteEmbeddingItems = `
DELETE FROM embedding_items WHERE item_type = $1 AND item_id = ANY($2)
`

func (q *Queries) DeleteEmbeddingItems(ctx context.Context, itemType string, itemIDs []string) error {
	_, err := q.db.Exec(ctx, deleteEmbeddingItems, itemType, itemIDs)
	return err
}

const getEmbeddingContentHashes = `
SELECT item_id, content_hash FROM embedding_items WHERE item_type = $1 AND item_id = ANY($2)
`

func (q *Queries) GetEmbeddingContentHashes(ctx context.Context, itemType string, itemIDs []string) (map[string]string, error) {
	rows, err := q.db.Query(ctx, getEmbeddingContentHashes, itemType, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// searchEmbeddingsByDistance orders candidates by cosine distance
// ("<=>") to the query vector, ascending (closer first).
const searchEmbeddingsByDistance = `
SELECT item_type, item_id, connection_id, scan_id, content_hash, embedding, updated_at,
       embedding <=> $1 AS distance
FROM embedding_items
ORDER BY distance ASC
LIMIT $2
`

type EmbeddingSearchRow struct {
	EmbeddingItem
	Distance float32
}

func (q *Queries) SearchEmbeddingsByDistance(ctx context.Context, query []float32, limit int32) ([]EmbeddingSearchRow, error) {
	rows, err := q.db.Query(ctx, searchEmbeddingsByDistance, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmbeddingSearchRow
	for rows.Next() {
		var r EmbeddingSearchRow
		var vec pgvector.Vector
		if err := rows.Scan(&r.ItemType, &r.ItemID, &r.ConnectionID, &r.ScanID, &r.ContentHash, &vec, &r.UpdatedAt, &r.Distance); err != nil {
			return nil, err
		}
		r.Embedding = vec.Slice()
		out = append(out, r)
	}
	return out, rows.Err()
}
