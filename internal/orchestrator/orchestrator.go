// Package orchestrator owns the SQL-RAG Orchestrator's state machine:
// it reconciles stale scans, builds the bounded schema snapshot and
// allowlist for the requested connections, runs the Planner Loop, and
// — unless the loop already produced a final answer on its own —
// hands the results to the Responder.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"sqlrag.app/engine/common/logger"
	"sqlrag.app/engine/internal/model"
	"sqlrag.app/engine/internal/planner"
	"sqlrag.app/engine/internal/predefined"
	"sqlrag.app/engine/internal/schemacontext"
)

// SchemaBuilder is the subset of internal/schemacontext.Builder the
// orchestrator depends on.
type SchemaBuilder interface {
	Build(ctx context.Context, connectionIDs []int64, limits schemacontext.Limits) (model.SchemaSnapshot, model.Allowlist, error)
}

// Reconciler is the subset of internal/schemacontext.Reconciler the
// orchestrator depends on.
type Reconciler interface {
	Reconcile(ctx context.Context, connectionIDs []int64, staleAfter time.Duration) (promoted, failed int, err error)
}

// PlannerLoop is the subset of internal/planner.Loop the orchestrator
// depends on.
type PlannerLoop interface {
	Run(ctx context.Context, question, dialect string, connectionIDs []int64, conversationContext []string, snapshot model.SchemaSnapshot, allowlist model.Allowlist, predefinedQueries []model.PredefinedQuery) planner.Result
}

// Responder is the subset of internal/responder.Responder the
// orchestrator depends on.
type Responder interface {
	Respond(ctx context.Context, systemPrompt, question string, snapshot model.SchemaSnapshot, results []model.SQLResult) model.ResponderOutput
}

// Config bounds non-LLM behaviour the orchestrator itself owns.
type Config struct {
	Dialect          string
	StaleScanMinutes int
	SchemaLimits     schemacontext.Limits
	SampleRowsLimit  int
}

// Orchestrator coordinates one question's full SQL-RAG turn.
type Orchestrator struct {
	reconciler Reconciler
	builder    SchemaBuilder
	loop       PlannerLoop
	responder  Responder
	registry   *predefined.Registry
	cfg        Config
}

func New(reconciler Reconciler, builder SchemaBuilder, loop PlannerLoop, responder Responder, registry *predefined.Registry, cfg Config) *Orchestrator {
	return &Orchestrator{reconciler: reconciler, builder: builder, loop: loop, responder: responder, registry: registry, cfg: cfg}
}

// Input is the public request shape for one orchestration call.
type Input struct {
	Question            string
	ConnectionIDs       []int64
	ConversationContext []string
	AgentSystemPrompt   string
}

// Output is the public response shape: the final answer plus the
// executed-query manifest and a size-bounded tool payload.
type Output struct {
	Answer          string                     `json:"answer"`
	UsedSQL         []model.ResponderUsedSQL   `json:"used_sql,omitempty"`
	Assumptions     []string                   `json:"assumptions,omitempty"`
	Caveats         []string                   `json:"caveats,omitempty"`
	Followups       []string                   `json:"followups,omitempty"`
	ExecutedQueries []model.ExecutedQueryRecord `json:"executed_queries"`
	ToolPayload     string                     `json:"tool_payload"`
}

// Orchestrate runs one full question through the Schema Context
// Builder, Planner Loop, and — unless the loop already has a final
// answer — the Responder.
func (o *Orchestrator) Orchestrate(ctx context.Context, in Input) (Output, error) {
	if o.cfg.Dialect != "postgres" {
		return Output{}, newConfigError("unsupported database dialect", fmt.Errorf("dialect %q is not supported", o.cfg.Dialect))
	}

	if promoted, failed, err := o.reconciler.Reconcile(ctx, in.ConnectionIDs, time.Duration(o.cfg.StaleScanMinutes)*time.Minute); err != nil {
		slog.WarnContext(ctx, "scan reconciliation failed, continuing with existing catalog state", "error", err)
	} else if promoted+failed > 0 {
		slog.InfoContext(ctx, "reconciled stale scans", "promoted", promoted, "failed", failed)
	}

	snapshot, allowlist, err := o.builder.Build(ctx, in.ConnectionIDs, o.cfg.SchemaLimits)
	if err != nil {
		if err == schemacontext.ErrNoCatalog {
			return Output{}, newCatalogAbsentError(err)
		}
		return Output{}, fmt.Errorf("building schema context: %w", err)
	}

	result := o.loop.Run(ctx, in.Question, o.cfg.Dialect, in.ConnectionIDs, in.ConversationContext, snapshot, allowlist, o.registry.All())

	if result.FinalAnswer != nil {
		return Output{
			Answer:          *result.FinalAnswer,
			ExecutedQueries: result.ExecutedQueries,
			ToolPayload:     o.buildToolPayload(ctx, result.SQLResults),
		}, nil
	}

	responderOutput := o.responder.Respond(ctx, in.AgentSystemPrompt, in.Question, snapshot, result.SQLResults)

	return Output{
		Answer:          responderOutput.Answer,
		UsedSQL:         responderOutput.UsedSQL,
		Assumptions:     responderOutput.Assumptions,
		Caveats:         responderOutput.Caveats,
		Followups:       responderOutput.Followups,
		ExecutedQueries: result.ExecutedQueries,
		ToolPayload:     o.buildToolPayload(ctx, result.SQLResults),
	}, nil
}

// toolPayload is the wire shape of a non-empty Output.ToolPayload:
// the per-orchestration request id, the full (row-truncated)
// sql_results, and the metadata-only executed_queries manifest — so a
// caller-side agent can see sample rows without message history
// growing unbounded with the Executor's full result sets.
type toolPayload struct {
	RequestID       string                      `json:"request_id"`
	SQLResults      []truncatedSQLResult        `json:"sql_results"`
	ExecutedQueries []model.ExecutedQueryRecord `json:"executed_queries"`
}

type truncatedSQLResult struct {
	model.ExecutedQueryRecord
	Rows []map[string]any `json:"rows"`
	Err  string           `json:"error,omitempty"`
}

// buildToolPayload renders the request id, the executed-query
// manifest, and, per query, the first SampleRowsLimit rows — so
// message history fed back to a caller-side agent stays bounded
// regardless of how many rows the Executor actually fetched. Returns
// "" when there is nothing to report, per the empty-tool_payload
// contract for a no-SQL turn.
func (o *Orchestrator) buildToolPayload(ctx context.Context, results []model.SQLResult) string {
	if len(results) == 0 {
		return ""
	}

	sqlResults := make([]truncatedSQLResult, 0, len(results))
	executedQueries := make([]model.ExecutedQueryRecord, 0, len(results))
	for _, r := range results {
		rows := r.Rows
		if o.cfg.SampleRowsLimit > 0 && len(rows) > o.cfg.SampleRowsLimit {
			rows = rows[:o.cfg.SampleRowsLimit]
		}
		sqlResults = append(sqlResults, truncatedSQLResult{ExecutedQueryRecord: r.ExecutedQueryRecord, Rows: rows, Err: r.Err})
		executedQueries = append(executedQueries, r.ExecutedQueryRecord)
	}

	requestID := ""
	if id := logger.GetLogFields(ctx).RequestID; id != nil {
		requestID = *id
	}

	data, err := json.Marshal(toolPayload{RequestID: requestID, SQLResults: sqlResults, ExecutedQueries: executedQueries})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal tool payload", "error", err)
		return ""
	}
	return string(data)
}
