package model

import "encoding/json"

// DecisionKind is the discriminant of the Planner's tagged-union
// decision. Treat additions to this set as exhaustive: every switch
// over DecisionKind in this module has a default branch that returns
// an error so a forgotten case fails loudly instead of silently.
type DecisionKind string

const (
	DecisionRunSelects        DecisionKind = "run_selects"
	DecisionUsePredefined     DecisionKind = "use_predefined"
	DecisionNoSQLNeeded       DecisionKind = "no_sql_needed"
	DecisionNeedClarification DecisionKind = "need_clarification"
	DecisionRefuse            DecisionKind = "refuse"
)

// PlannerQuery is a single candidate query proposed by the Planner.
type PlannerQuery struct {
	Name           string          `json:"name"`
	Purpose        string          `json:"purpose"`
	SQL            string          `json:"sql"`
	ConnectionID   *int64          `json:"connection_id,omitempty"`
	ExpectedShape  json.RawMessage `json:"expected_shape,omitempty"`
	Safety         json.RawMessage `json:"safety,omitempty"`
}

// PlannerDecision is the parsed, validated form of the Planner LLM's
// wire response.
type PlannerDecision struct {
	Decision            DecisionKind   `json:"decision"`
	Reason              string         `json:"reason"`
	Entities            []string       `json:"entities"`
	Queries             []PlannerQuery `json:"queries"`
	PredefinedQueryID   *string        `json:"predefined_query_id"`
	ClarifyingQuestion  *string        `json:"clarifying_question"`
}

// Valid reports whether d carries a recognised decision kind and the
// fields that decision requires.
func (d PlannerDecision) Valid() bool {
	switch d.Decision {
	case DecisionRunSelects:
		return len(d.Queries) > 0
	case DecisionUsePredefined:
		return d.PredefinedQueryID != nil && *d.PredefinedQueryID != ""
	case DecisionNoSQLNeeded, DecisionRefuse:
		return true
	case DecisionNeedClarification:
		return d.ClarifyingQuestion != nil && *d.ClarifyingQuestion != ""
	default:
		return false
	}
}

// ExecutedQueryRecord is the metadata-only record of one executed
// query, appended monotonically per orchestration round.
type ExecutedQueryRecord struct {
	Name         string `json:"name"`
	SQL          string `json:"sql"`
	RowsReturned int    `json:"rows_returned"`
	Truncated    bool   `json:"truncated"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	ConnectionID int64  `json:"connection_id"`
}

// SQLResult is the full per-query result set, including row data, used
// internally to build the Responder's context. Callers never receive
// this directly — only ExecutedQueryRecord and a truncated tool
// payload.
type SQLResult struct {
	ExecutedQueryRecord
	Rows []map[string]any `json:"rows"`
	Err  string           `json:"error,omitempty"`
}

// ResponderOutput is the parsed, validated form of the Responder LLM's
// wire response.
type ResponderOutput struct {
	Answer      string             `json:"answer"`
	UsedSQL     []ResponderUsedSQL `json:"used_sql"`
	Assumptions []string           `json:"assumptions"`
	Caveats     []string           `json:"caveats"`
	Followups   []string           `json:"followups"`
}

// ResponderUsedSQL names a query the Responder leaned on while
// composing its answer.
type ResponderUsedSQL struct {
	Name         string `json:"name"`
	SQL          string `json:"sql"`
	RowsReturned int    `json:"rows_returned"`
}

// PredefinedQuery is a parameterised, pre-vetted query the Planner can
// reference by id instead of drafting SQL from scratch.
type PredefinedQuery struct {
	ID           string
	Name         string
	Description  string
	SQLTemplate  string
	ConnectionID *int64
}
