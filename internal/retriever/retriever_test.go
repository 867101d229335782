package retriever

import (
	"context"
	"testing"

	"sqlrag.app/engine/internal/model"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.vectors) >= len(texts) {
		return f.vectors[:len(texts)], nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeSearchStore struct {
	candidates []model.RetrievedCandidate
}

func (f *fakeSearchStore) SearchEmbeddingsByDistance(ctx context.Context, query []float32, limit int) ([]model.RetrievedCandidate, error) {
	if limit < len(f.candidates) {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func scanPtr(id int64) *int64 { return &id }

func TestRetrieve_FiltersByMinScore(t *testing.T) {
	store := &fakeSearchStore{candidates: []model.RetrievedCandidate{
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t1", ConnectionID: 1}, Distance: 0.1},
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t2", ConnectionID: 1}, Distance: 0.9},
	}}
	r := New(&fakeEmbedder{}, store)

	got, err := r.Retrieve(context.Background(), "how many assets", Scope{}, 5, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ItemID != "t1" {
		t.Fatalf("expected only t1 to survive the min-score filter, got %+v", got)
	}
}

func TestRetrieve_ScopeNarrowsByConnectionAndScan(t *testing.T) {
	store := &fakeSearchStore{candidates: []model.RetrievedCandidate{
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t1", ConnectionID: 1, ScanID: scanPtr(10)}, Distance: 0.1},
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t2", ConnectionID: 2, ScanID: scanPtr(20)}, Distance: 0.2},
	}}
	r := New(&fakeEmbedder{}, store)

	got, err := r.Retrieve(context.Background(), "q", Scope{ConnectionIDs: []int64{1}, ScanIDs: []int64{10}}, 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ItemID != "t1" {
		t.Fatalf("expected only t1 in scope, got %+v", got)
	}
}

func TestRetrieve_EmptyAfterScopeFallsBackToPrefiltered(t *testing.T) {
	store := &fakeSearchStore{candidates: []model.RetrievedCandidate{
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t1", ConnectionID: 99}, Distance: 0.1},
	}}
	r := New(&fakeEmbedder{}, store)

	got, err := r.Retrieve(context.Background(), "q", Scope{ConnectionIDs: []int64{1}}, 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ItemID != "t1" {
		t.Fatalf("expected fallback to the pre-filter list when scope narrows to empty, got %+v", got)
	}
}

func TestRetrieve_CapsAtTopK(t *testing.T) {
	store := &fakeSearchStore{candidates: []model.RetrievedCandidate{
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t1"}, Distance: 0.1},
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t2"}, Distance: 0.2},
		{EmbeddingItem: model.EmbeddingItem{ItemType: model.EmbeddingItemTable, ItemID: "t3"}, Distance: 0.3},
	}}
	r := New(&fakeEmbedder{}, store)

	got, err := r.Retrieve(context.Background(), "q", Scope{}, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected at most 2 candidates, got %d", len(got))
	}
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	r := New(&fakeEmbedder{err: errFakeEmbed}, &fakeSearchStore{})
	_, err := r.Retrieve(context.Background(), "q", Scope{}, 5, 0)
	if err == nil {
		t.Fatalf("expected an error when the embedder fails")
	}
}

var errFakeEmbed = fakeEmbedError("embedding backend unavailable")

type fakeEmbedError string

func (e fakeEmbedError) Error() string { return string(e) }
