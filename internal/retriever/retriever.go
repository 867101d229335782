// Package retriever implements the Vector Retriever: it embeds a
// question, ranks catalog entities by cosine distance against the
// embedding store, and scopes the candidates to the caller's
// connections and latest scans.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"sqlrag.app/engine/common/llm"
	"sqlrag.app/engine/internal/model"
)

// SearchStore is the embedding-store surface the retriever searches
// against.
type SearchStore interface {
	SearchEmbeddingsByDistance(ctx context.Context, query []float32, limit int) ([]model.RetrievedCandidate, error)
}

// Scope narrows candidates to the caller's connections and, when a
// latest-scan set is known, to the scans that produced the current
// catalog snapshot.
type Scope struct {
	ConnectionIDs []int64
	ScanIDs       []int64 // empty means "no scan filter"
}

// Retriever embeds questions and ranks catalog entities by similarity
// to them. The Planner Loop does not call it, so its results do not
// appear in the Planner's prompt.
type Retriever struct {
	embedder llm.Embedder
	store    SearchStore
}

func New(embedder llm.Embedder, store SearchStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds question, searches the embedding store, and returns
// at most topK candidates scoped to scope, ranked by ascending
// distance (closest first).
func (r *Retriever) Retrieve(ctx context.Context, question string, scope Scope, topK int, minScore float32) ([]model.RetrievedCandidate, error) {
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for the question")
	}

	searchLimit := topK
	scoped := len(scope.ConnectionIDs) > 0 || len(scope.ScanIDs) > 0
	if scoped {
		searchLimit = topK * 20
	}
	if searchLimit <= 0 {
		searchLimit = topK
	}

	candidates, err := r.store.SearchEmbeddingsByDistance(ctx, vectors[0], searchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })

	prefiltered := filterByScore(candidates, minScore)

	filtered := filterByScope(prefiltered, scope)
	if len(filtered) == 0 && len(prefiltered) > 0 {
		filtered = prefiltered
	}

	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

func filterByScore(candidates []model.RetrievedCandidate, minScore float32) []model.RetrievedCandidate {
	if minScore <= 0 {
		return candidates
	}
	out := make([]model.RetrievedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Distance <= minScore {
			out = append(out, c)
		}
	}
	return out
}

func filterByScope(candidates []model.RetrievedCandidate, scope Scope) []model.RetrievedCandidate {
	if len(scope.ConnectionIDs) == 0 && len(scope.ScanIDs) == 0 {
		return candidates
	}
	connSet := toSet(scope.ConnectionIDs)
	scanSet := toSet(scope.ScanIDs)

	out := make([]model.RetrievedCandidate, 0, len(candidates))
	for _, c := range candidates {
		switch c.ItemType {
		case model.EmbeddingItemTable, model.EmbeddingItemColumn:
			if len(connSet) > 0 {
				if _, ok := connSet[c.ConnectionID]; !ok {
					continue
				}
			}
			if len(scanSet) > 0 && c.ScanID != nil {
				if _, ok := scanSet[*c.ScanID]; !ok {
					continue
				}
			}
			out = append(out, c)
		case model.EmbeddingItemAPIRoute:
			if len(connSet) > 0 {
				if _, ok := connSet[c.ConnectionID]; !ok {
					continue
				}
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
