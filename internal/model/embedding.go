package model

import "time"

// EmbeddingItemType discriminates the catalog entity kinds the Vector
// Retriever indexes.
type EmbeddingItemType string

const (
	EmbeddingItemTable    EmbeddingItemType = "table"
	EmbeddingItemColumn   EmbeddingItemType = "column"
	EmbeddingItemAPIRoute EmbeddingItemType = "api_route"
)

// EmbeddingItem is one row of the embedding store: a catalog entity's
// vector plus enough scope metadata to filter candidates by
// connection and scan.
type EmbeddingItem struct {
	ItemType     EmbeddingItemType
	ItemID       string
	ConnectionID int64
	ScanID       *int64
	ContentHash  string
	Embedding    []float32
	UpdatedAt    time.Time
}

// RetrievedCandidate is a scored embedding item returned by a
// similarity search, before or after scope filtering.
type RetrievedCandidate struct {
	EmbeddingItem
	Distance float32
}
