// Package predefined holds the Predefined Query Registry: a set of
// pre-vetted PlannerQuery templates the Planner can select by id
// instead of drafting SQL, loaded once at orchestrator construction
// time and held in memory for the process lifetime.
package predefined

import (
	"context"
	"fmt"

	"sqlrag.app/engine/internal/model"
)

// Store is the subset of internal/store.Store the registry needs.
type Store interface {
	ListPredefinedQueries(ctx context.Context) ([]model.PredefinedQuery, error)
}

// Registry resolves a predefined query id to a ready-to-run
// PlannerQuery template.
type Registry struct {
	queries map[string]model.PredefinedQuery
}

// Load reads every predefined query row and builds a Registry. A
// duplicate id across rows overwrites the earlier entry, last write
// wins.
func Load(ctx context.Context, store Store) (*Registry, error) {
	rows, err := store.ListPredefinedQueries(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading predefined queries: %w", err)
	}
	queries := make(map[string]model.PredefinedQuery, len(rows))
	for _, q := range rows {
		queries[q.ID] = q
	}
	return &Registry{queries: queries}, nil
}

// ErrUnknownQuery is returned when an id has no matching template.
var ErrUnknownQuery = fmt.Errorf("unknown predefined query id")

// Resolve turns a predefined query id into a PlannerQuery ready for
// the Executor, named after the template itself so downstream
// ExecutedQueryRecord entries read sensibly.
func (r *Registry) Resolve(id string) (model.PlannerQuery, error) {
	q, ok := r.queries[id]
	if !ok {
		return model.PlannerQuery{}, fmt.Errorf("%w: %s", ErrUnknownQuery, id)
	}
	return model.PlannerQuery{
		Name:         q.Name,
		Purpose:      q.Description,
		SQL:          q.SQLTemplate,
		ConnectionID: q.ConnectionID,
	}, nil
}

// Len reports how many templates are loaded.
func (r *Registry) Len() int {
	return len(r.queries)
}

// All returns every loaded template, for inclusion in the Planner's
// prompt payload. Order is unspecified.
func (r *Registry) All() []model.PredefinedQuery {
	out := make([]model.PredefinedQuery, 0, len(r.queries))
	for _, q := range r.queries {
		out = append(out, q)
	}
	return out
}
