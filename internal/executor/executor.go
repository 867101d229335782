// Package executor runs validated PlannerQuery candidates against a
// cached engine, bounding row count and statement duration, and
// reports per-query outcomes back to the Planner Loop. A run stops at
// the first failing query: the results returned end with that query's
// error, and the queries after it are not run.
package executor

import (
	"context"
	"fmt"
	"time"

	"sqlrag.app/engine/internal/model"
	"sqlrag.app/engine/internal/sqlvalidator"
)

// ConnectionResolver loads the dialect/version marker the Engine
// Cache and statement-timeout logic need for a connection.
type ConnectionResolver interface {
	GetConnection(ctx context.Context, id int64) (model.Connection, error)
}

// QueryRunner executes one already-validated SQL statement against a
// connection's cached engine. Separated from the Engine Cache itself
// so the Executor's dispatch/validation logic is testable without a
// live pgx pool.
type QueryRunner interface {
	Run(ctx context.Context, connectionID int64, versionKey, sql string, timeoutMs, maxRows int) (rows []map[string]any, truncated bool, err error)
}

// Config bounds the Executor's per-call and per-query behaviour.
type Config struct {
	MaxQueries int
	MaxRows    int
	TimeoutMs  int
}

// Executor validates and runs PlannerQuery candidates, one at a time,
// through a QueryRunner.
type Executor struct {
	connections ConnectionResolver
	runner      QueryRunner
	cfg         Config
}

func New(connections ConnectionResolver, runner QueryRunner, cfg Config) *Executor {
	return &Executor{connections: connections, runner: runner, cfg: cfg}
}

// Run executes queries in order, against the given allowlist and
// default connection id (used when a query does not name one),
// stopping at the first error — its caller (the Planner Loop) treats
// a stopped run as error_context.sql_error and retries the outer
// attempt with that context. Queries beyond cfg.MaxQueries are
// dropped before anything runs.
func (e *Executor) Run(ctx context.Context, queries []model.PlannerQuery, allowlist model.Allowlist, scopeConnectionIDs []int64, defaultConnectionID int64) ([]model.SQLResult, error) {
	if e.cfg.MaxQueries > 0 && len(queries) > e.cfg.MaxQueries {
		queries = queries[:e.cfg.MaxQueries]
	}

	inScope := make(map[int64]bool, len(scopeConnectionIDs))
	for _, id := range scopeConnectionIDs {
		inScope[id] = true
	}

	results := make([]model.SQLResult, 0, len(queries))
	for _, q := range queries {
		result := e.runOne(ctx, q, allowlist, inScope, defaultConnectionID)
		results = append(results, result)
		if result.Err != "" {
			return results, fmt.Errorf("query %q failed: %s", result.Name, result.Err)
		}
	}
	return results, nil
}

func (e *Executor) runOne(ctx context.Context, q model.PlannerQuery, allowlist model.Allowlist, inScope map[int64]bool, defaultConnectionID int64) model.SQLResult {
	connID := defaultConnectionID
	if q.ConnectionID != nil {
		connID = *q.ConnectionID
	}
	record := model.ExecutedQueryRecord{Name: q.Name, SQL: q.SQL, ConnectionID: connID}

	if len(inScope) > 0 && !inScope[connID] {
		return model.SQLResult{ExecutedQueryRecord: record, Err: fmt.Sprintf("connection %d is not within scope", connID)}
	}

	validation := sqlvalidator.Validate(q.SQL, allowlist, connID, e.cfg.MaxRows)
	if !validation.OK {
		return model.SQLResult{ExecutedQueryRecord: record, Err: validation.Reason}
	}
	record.SQL = validation.RewrittenSQL

	conn, err := e.connections.GetConnection(ctx, connID)
	if err != nil {
		return model.SQLResult{ExecutedQueryRecord: record, Err: fmt.Sprintf("loading connection: %v", err)}
	}

	start := time.Now()
	rows, truncated, err := e.runner.Run(ctx, connID, conn.LastModifiedAt.String(), validation.RewrittenSQL, e.cfg.TimeoutMs, e.cfg.MaxRows)
	elapsed := time.Since(start)
	if err != nil {
		return model.SQLResult{ExecutedQueryRecord: record, Err: fmt.Sprintf("executing query: %v", err)}
	}

	record.RowsReturned = len(rows)
	record.Truncated = truncated
	record.ElapsedMs = elapsed.Milliseconds()
	return model.SQLResult{ExecutedQueryRecord: record, Rows: rows}
}
