package predefined

import (
	"context"
	"errors"
	"testing"

	"sqlrag.app/engine/internal/model"
)

type fakeStore struct {
	rows []model.PredefinedQuery
}

func (f *fakeStore) ListPredefinedQueries(ctx context.Context) ([]model.PredefinedQuery, error) {
	return f.rows, nil
}

func TestRegistry_ResolveKnownID(t *testing.T) {
	connID := int64(7)
	store := &fakeStore{rows: []model.PredefinedQuery{
		{ID: "top-assets", Name: "top_assets", Description: "top 10 assets by value", SQLTemplate: "SELECT * FROM assets ORDER BY value DESC LIMIT 10", ConnectionID: &connID},
	}}

	r, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 loaded query, got %d", r.Len())
	}

	q, err := r.Resolve("top-assets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Name != "top_assets" || q.SQL == "" {
		t.Fatalf("unexpected resolved query: %+v", q)
	}
	if q.ConnectionID == nil || *q.ConnectionID != connID {
		t.Fatalf("expected connection id to carry through")
	}
}

func TestRegistry_ResolveUnknownID(t *testing.T) {
	r, err := Load(context.Background(), &fakeStore{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = r.Resolve("missing")
	if !errors.Is(err, ErrUnknownQuery) {
		t.Fatalf("expected ErrUnknownQuery, got %v", err)
	}
}
