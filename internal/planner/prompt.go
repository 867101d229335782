package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"sqlrag.app/engine/internal/model"
)

// DefaultSystemPrompt is the Planner LLM's fixed system prompt, used
// unless a deployment supplies its own. Unlike the Responder's prompt,
// which a caller customizes per request for voice/tone, the Planner's
// prompt is wire-format instruction, not style, so it stays fixed at
// construction time.
const DefaultSystemPrompt = `You are the SQL planning agent of a read-only SQL-RAG orchestrator.
Given a question, conversation context, a bounded schema snapshot, a list of predefined queries,
and execution constraints, decide one of:
  - "run_selects": propose new read-only, single-statement SELECT queries scoped to the tables
    and columns in the snapshot. Set "queries" to the list of queries to run.
  - "use_predefined": reference one of the predefined queries by id. Set "predefined_query_id"
    to its id.
  - "no_sql_needed": you already have enough from prior rounds' results to answer; run nothing
    more.
  - "need_clarification": the question is too ambiguous to plan against. Set
    "clarifying_question" to what you need the caller to answer.
  - "refuse": the question cannot or should not be answered from the available schema. Set
    "reason" to why.
Respond with a single JSON object: {"decision", "reason", "entities", "queries",
"predefined_query_id", "clarifying_question"}, including only the fields your decision requires.
Nothing else in the response.`

// payload is the planner request body; it mirrors the wire shape the
// Planner LLM is instructed (via its system prompt) to consume and
// respond to as a single JSON decision object.
type payload struct {
	Question            string                  `json:"question"`
	Dialect             string                  `json:"dialect"`
	ConnectionIDs       []int64                 `json:"connection_ids"`
	ConversationContext []string                `json:"conversation_context,omitempty"`
	Snapshot            snapshotView            `json:"snapshot"`
	PredefinedQueries   []model.PredefinedQuery `json:"predefined_queries"`
	Constraints         constraints             `json:"constraints"`
	PriorRounds         []roundSummary          `json:"prior_rounds,omitempty"`
	ErrorContext        *errorContext           `json:"error_context,omitempty"`
}

type constraints struct {
	MaxQueries int `json:"max_queries"`
	MaxRows    int `json:"max_rows"`
	TimeoutMs  int `json:"timeout_ms"`
}

type roundSummary struct {
	Name         string `json:"name"`
	SQL          string `json:"sql"`
	RowsReturned int    `json:"row_count"`
	Truncated    bool   `json:"truncated"`
	ConnectionID int64  `json:"connection_id"`
}

type errorContext struct {
	PlannerError string `json:"planner_error,omitempty"`
	SQLError     string `json:"sql_error,omitempty"`
}

type snapshotView struct {
	Tables      []model.CatalogTable      `json:"tables"`
	Constraints []model.CatalogConstraint `json:"constraints"`
	Indexes     []model.CatalogIndex      `json:"indexes"`
}

func buildPayload(question string, dialect string, connectionIDs []int64, conversationContext []string, snapshot model.SchemaSnapshot, predefined []model.PredefinedQuery, cfg Config, prior []roundSummary, errCtx *errorContext) payload {
	return payload{
		Question:            question,
		Dialect:             dialect,
		ConnectionIDs:       connectionIDs,
		ConversationContext: conversationContext,
		Snapshot: snapshotView{
			Tables:      snapshot.Tables,
			Constraints: snapshot.Constraints,
			Indexes:     snapshot.Indexes,
		},
		PredefinedQueries: predefined,
		Constraints: constraints{
			MaxQueries: cfg.MaxQueries,
			MaxRows:    cfg.MaxRows,
			TimeoutMs:  cfg.TimeoutMs,
		},
		PriorRounds:  prior,
		ErrorContext: errCtx,
	}
}

func (p payload) marshal() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshalling planner payload: %w", err)
	}
	return string(data), nil
}

// stripFence removes a leading/trailing triple-backtick code fence and
// an optional "json" language tag from a raw LLM response.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseDecision(raw string) (model.PlannerDecision, error) {
	cleaned := stripFence(raw)
	var decision model.PlannerDecision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		return model.PlannerDecision{}, fmt.Errorf("unmarshalling planner decision: %w", err)
	}
	if !decision.Valid() {
		return model.PlannerDecision{}, fmt.Errorf("planner decision %q failed schema validation", decision.Decision)
	}
	return decision, nil
}
