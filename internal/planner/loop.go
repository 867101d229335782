// Package planner drives the bounded Planner Loop: it asks the
// Planner LLM (or the heuristic fallback) for a decision, dispatches
// on that decision, executes any resulting queries, and retries with
// accumulated error context until it either has something for the
// Responder or must return a final answer on its own.
package planner

import (
	"context"
	"fmt"
	"log/slog"

	"sqlrag.app/engine/common/llm"
	"sqlrag.app/engine/internal/fallback"
	"sqlrag.app/engine/internal/model"
	"sqlrag.app/engine/internal/predefined"
)

// Config bounds the loop's retries and per-round LLM calls.
type Config struct {
	PlannerRetryLimit int
	AgentSelectRounds int
	MaxQueries        int
	MaxRows           int
	TimeoutMs         int
}

// Executor is the subset of internal/executor.Executor the loop
// depends on.
type Executor interface {
	Run(ctx context.Context, queries []model.PlannerQuery, allowlist model.Allowlist, scopeConnectionIDs []int64, defaultConnectionID int64) ([]model.SQLResult, error)
}

// Result is what the loop hands back to the Orchestrator: either
// sql_results ready for the Responder, or a FinalAnswer that bypasses
// it entirely (refusal, clarification, or an exhausted-retries
// message).
type Result struct {
	SQLResults      []model.SQLResult
	ExecutedQueries []model.ExecutedQueryRecord
	FinalAnswer     *string
}

// genericRephraseMessage is returned once every retry attempt has
// been spent, whether the last attempt ended on an unusable planner
// decision or on a failed query; there is no separate
// execution-failure message.
const genericRephraseMessage = "I couldn't turn that into a safe, valid query. Could you rephrase your question?"

// Loop drives the bounded plan/execute/replan cycle: ask the Planner
// LLM for a decision, validate and run it, and feed the result back
// until a final answer emerges or the retry budget runs out.
type Loop struct {
	llmClient    llm.AgentClient
	systemPrompt string
	registry     *predefined.Registry
	executor     Executor
	cfg          Config
}

func NewLoop(llmClient llm.AgentClient, systemPrompt string, registry *predefined.Registry, exec Executor, cfg Config) *Loop {
	return &Loop{llmClient: llmClient, systemPrompt: systemPrompt, registry: registry, executor: exec, cfg: cfg}
}

// loopState threads across attempts and rounds within one Run call.
type loopState struct {
	errCtx          *errorContext
	prior           []roundSummary
	sqlResults      []model.SQLResult
	executedQueries []model.ExecutedQueryRecord
	fallbackTried   bool
}

// Run executes the bounded attempt/round loop for one question. It
// calls the Planner LLM at most (PlannerRetryLimit+1) x
// AgentSelectRounds times before giving up and returning a generic
// message.
func (l *Loop) Run(ctx context.Context, question, dialect string, connectionIDs []int64, conversationContext []string, snapshot model.SchemaSnapshot, allowlist model.Allowlist, predefinedQueries []model.PredefinedQuery) Result {
	st := &loopState{}

	for attempt := 0; attempt <= l.cfg.PlannerRetryLimit; attempt++ {
		if result, done := l.runAttempt(ctx, st, question, dialect, connectionIDs, conversationContext, snapshot, allowlist, predefinedQueries); done {
			return result
		}
	}

	slog.ErrorContext(ctx, "planner loop exhausted retries", "question", question)
	return Result{FinalAnswer: ptr(genericRephraseMessage), ExecutedQueries: st.executedQueries}
}

// runAttempt runs up to AgentSelectRounds rounds of a single attempt.
// done is true when the loop has a final outcome (success, refusal,
// clarification, or no_sql_needed); false means the caller should try
// another attempt.
func (l *Loop) runAttempt(ctx context.Context, st *loopState, question, dialect string, connectionIDs []int64, conversationContext []string, snapshot model.SchemaSnapshot, allowlist model.Allowlist, predefinedQueries []model.PredefinedQuery) (Result, bool) {
	for round := 0; round < l.cfg.AgentSelectRounds; round++ {
		decision, err := l.decideWithFallback(ctx, st, question, dialect, connectionIDs, conversationContext, snapshot, predefinedQueries)
		if err != nil {
			st.errCtx = &errorContext{PlannerError: err.Error()}
			return Result{}, false
		}

		switch decision.Decision {
		case model.DecisionNoSQLNeeded:
			return Result{SQLResults: st.sqlResults, ExecutedQueries: st.executedQueries}, true

		case model.DecisionNeedClarification:
			if fallback.MatchesIntent(question) && !st.fallbackTried {
				st.fallbackTried = true
				alt := fallback.Plan(question, snapshot, connectionIDs, l.cfg.MaxRows)
				if alt.Decision == model.DecisionRunSelects {
					decision = alt
					break
				}
			}
			return Result{FinalAnswer: decision.ClarifyingQuestion}, true

		case model.DecisionRefuse:
			return Result{FinalAnswer: ptr(decision.Reason)}, true

		case model.DecisionUsePredefined:
			resolved, err := l.registry.Resolve(*decision.PredefinedQueryID)
			if err != nil {
				st.errCtx = &errorContext{PlannerError: err.Error()}
				return Result{}, false
			}
			decision.Queries = []model.PlannerQuery{resolved}

		case model.DecisionRunSelects:
			if l.cfg.MaxQueries > 0 && len(decision.Queries) > l.cfg.MaxQueries {
				decision.Queries = decision.Queries[:l.cfg.MaxQueries]
			}

		default:
			st.errCtx = &errorContext{PlannerError: fmt.Sprintf("unsupported planner decision %q", decision.Decision)}
			return Result{}, false
		}

		defaultConnectionID := int64(0)
		if len(connectionIDs) > 0 {
			defaultConnectionID = connectionIDs[0]
		}

		results, execErr := l.executor.Run(ctx, decision.Queries, allowlist, connectionIDs, defaultConnectionID)
		st.sqlResults = append(st.sqlResults, results...)
		for _, r := range results {
			st.executedQueries = append(st.executedQueries, r.ExecutedQueryRecord)
		}
		st.prior = appendRoundSummary(st.prior, results)

		if execErr != nil {
			lastErr := ""
			if len(results) > 0 {
				lastErr = results[len(results)-1].Err
			}
			st.errCtx = &errorContext{SQLError: lastErr}
			return Result{}, false
		}
		st.errCtx = nil
	}

	return Result{SQLResults: st.sqlResults, ExecutedQueries: st.executedQueries}, true
}

// decideWithFallback calls the Planner LLM and falls back to the
// heuristic planner once if the response is unparsable and the
// question matches a listing/extremum intent.
func (l *Loop) decideWithFallback(ctx context.Context, st *loopState, question, dialect string, connectionIDs []int64, conversationContext []string, snapshot model.SchemaSnapshot, predefinedQueries []model.PredefinedQuery) (model.PlannerDecision, error) {
	p := buildPayload(question, dialect, connectionIDs, conversationContext, snapshot, predefinedQueries, l.cfg, st.prior, st.errCtx)
	body, err := p.marshal()
	if err != nil {
		return model.PlannerDecision{}, err
	}

	raw, err := l.llmClient.ChatJSON(ctx, llm.JSONRequest{
		Messages: []llm.Message{
			{Role: "system", Content: l.systemPrompt},
			{Role: "user", Content: body},
		},
	})
	if err != nil {
		return model.PlannerDecision{}, fmt.Errorf("calling planner llm: %w", err)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		if fallback.MatchesIntent(question) && !st.fallbackTried {
			st.fallbackTried = true
			return fallback.Plan(question, snapshot, connectionIDs, l.cfg.MaxRows), nil
		}
		return model.PlannerDecision{}, err
	}
	return decision, nil
}

func appendRoundSummary(prior []roundSummary, results []model.SQLResult) []roundSummary {
	for _, r := range results {
		prior = append(prior, roundSummary{
			Name:         r.Name,
			SQL:          r.SQL,
			RowsReturned: r.RowsReturned,
			Truncated:    r.Truncated,
			ConnectionID: r.ConnectionID,
		})
	}
	return prior
}

func ptr(s string) *string { return &s }
