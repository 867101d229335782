package executor

import (
	"context"
	"fmt"

	"sqlrag.app/engine/internal/enginecache"
)

// PoolRunner is the production QueryRunner: it acquires a pooled
// connection from the Engine Cache, sets the dialect's statement
// timeout for the duration of the session, and fetches up to maxRows
// rows as column-name-keyed maps.
type PoolRunner struct {
	cache *enginecache.Cache
}

func NewPoolRunner(cache *enginecache.Cache) *PoolRunner {
	return &PoolRunner{cache: cache}
}

func (p *PoolRunner) Run(ctx context.Context, connectionID int64, versionKey, sql string, timeoutMs, maxRows int) ([]map[string]any, bool, error) {
	engine, err := p.cache.Acquire(ctx, connectionID, versionKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring engine: %w", err)
	}

	conn, err := engine.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring pooled connection: %w", err)
	}
	defer conn.Release()

	if timeoutMs > 0 && engine.Dialect == "postgres" {
		if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", timeoutMs)); err != nil {
			return nil, false, fmt.Errorf("setting statement timeout: %w", err)
		}
	}

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, false, err
		}
		record := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			record[string(fd.Name)] = values[i]
		}
		out = append(out, record)
		if maxRows > 0 && len(out) >= maxRows {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	// sql always carries a validator-enforced LIMIT of at most maxRows
	// (see internal/sqlvalidator.normalizeLimit), and the loop above
	// stops reading at maxRows rows, so no more than maxRows rows come
	// back — there is no further row to peek at. Hitting exactly maxRows rows back is itself the
	// signal that the limit, not the query's natural result size, is
	// what bounded the result.
	truncated := maxRows > 0 && len(out) == maxRows
	return out, truncated, nil
}
