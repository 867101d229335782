package sqlc

import "time"

type Connection struct {
	ID             int64
	Name           string
	Dialect        string
	DsnEncrypted   string
	LastModifiedAt time.Time
}

type Scan struct {
	ID           int64
	ConnectionID int64
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
}

type CatalogTable struct {
	ID           int64
	ScanID       int64
	ConnectionID int64
	Schema       string
	Name         string
	Type         string
	Description  string
	Annotations  string
}

type CatalogColumn struct {
	ID          int64
	TableID     int64
	Name        string
	Type        string
	Nullable    bool
	Annotations string
	Position    int32
}

type CatalogConstraint struct {
	ID         int64
	TableID    int64
	Name       string
	Type       string
	Definition string
}

type CatalogIndex struct {
	ID         int64
	TableID    int64
	Name       string
	Definition string
	IsUnique   bool
}

type CatalogSample struct {
	ID      int64
	TableID int64
	RowJSON []byte
}

type PredefinedQuery struct {
	ID           string
	Name         string
	Description  string
	SQLTemplate  string
	ConnectionID *int64
}

type EmbeddingItem struct {
	ItemType     string
	ItemID       string
	ConnectionID int64
	ScanID       *int64
	ContentHash  string
	Embedding    []float32
	UpdatedAt    time.Time
}
