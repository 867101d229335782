// Package fallback implements the heuristic fallback planner invoked
// when the LLM Planner returns output that cannot be parsed but the
// question still reads like a listing or extremum request. The
// pattern set is deliberately data-shaped (plain regexes, ordered
// slices) rather than anything clever, so it can be re-tuned without
// touching the dispatch logic around it.
package fallback

import (
	"regexp"
	"strconv"
	"strings"

	"sqlrag.app/engine/internal/model"
)

var (
	listIntentPattern     = regexp.MustCompile(`listar|liste|mostrar|mostre|citar|cite|exemplos?|registros?`)
	extremumIntentPattern = regexp.MustCompile(`maior|menor|top|últim[oa]|ultimo|primeiro|mais caro|mais barata|mais alto|mais baixo`)
	limitCapturePattern   = regexp.MustCompile(`(?:cite|listar|liste|mostre|mostrar)\s+(\d+)`)
	punctuationPattern    = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

	preferredColumns = []string{"id", "name", "symbol", "ticker", "price", "value", "created_at"}
	orderColumns     = []string{"id", "created_at", "updated_at", "timestamp", "date", "data"}
	numericColumns   = []string{"value", "valor", "price", "preco", "amount", "total", "cost", "volume", "market_cap", "marketcap"}

	defaultLimit = 5
)

// normalize lowercases the question and replaces punctuation with
// spaces, matching the form every pattern above is written against.
func normalize(question string) string {
	lower := strings.ToLower(question)
	return punctuationPattern.ReplaceAllString(lower, " ")
}

// MatchesIntent reports whether question textually matches a listing
// or extremum intent; the Planner Loop uses this to decide whether a
// malformed LLM response is worth falling back on at all.
func MatchesIntent(question string) bool {
	n := normalize(question)
	return listIntentPattern.MatchString(n) || extremumIntentPattern.MatchString(n)
}

type tableCandidate struct {
	connectionID int64
	schema       string
	name         string
	columns      []string
}

func (c tableCandidate) identifier() string {
	return c.schema + "." + c.name
}

// Plan produces a PlannerDecision from pattern-matched intent alone,
// with no LLM call. maxRows caps the listing limit.
func Plan(question string, snapshot model.SchemaSnapshot, connectionIDs []int64, maxRows int) model.PlannerDecision {
	n := normalize(question)

	isList := listIntentPattern.MatchString(n)
	isExtremum := extremumIntentPattern.MatchString(n)
	if !isList && !isExtremum {
		return model.PlannerDecision{Decision: model.DecisionNoSQLNeeded, Reason: "question does not match a listing or extremum intent"}
	}

	candidates := flattenCandidates(snapshot, connectionIDs)
	table, ok := selectTable(n, candidates)
	if !ok {
		return needClarification(candidates)
	}

	cols := selectColumns(table.columns)
	orderCol := selectPreferred(table.columns, orderColumns, table.columns[0])
	limit := selectLimit(n, maxRows)

	var sql string
	if isExtremum {
		numCol := selectPreferred(table.columns, numericColumns, orderCol)
		direction := "DESC"
		if strings.Contains(n, "menor") {
			direction = "ASC"
		}
		sql = "SELECT " + strings.Join(cols, ", ") + " FROM " + table.identifier() + " ORDER BY " + numCol + " " + direction + " LIMIT 1"
	} else {
		sql = "SELECT " + strings.Join(cols, ", ") + " FROM " + table.identifier() + " ORDER BY " + orderCol + " DESC LIMIT " + strconv.Itoa(limit)
	}

	connID := table.connectionID
	return model.PlannerDecision{
		Decision: model.DecisionRunSelects,
		Reason:   "heuristic fallback matched a listing/extremum intent",
		Queries: []model.PlannerQuery{{
			Name:         "fallback_query",
			Purpose:      "heuristic fallback",
			SQL:          sql,
			ConnectionID: &connID,
		}},
	}
}

func needClarification(candidates []tableCandidate) model.PlannerDecision {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.identifier())
	}
	question := "which table did you mean: " + strings.Join(names, ", ") + "?"
	return model.PlannerDecision{
		Decision:           model.DecisionNeedClarification,
		Reason:             "fallback could not disambiguate a single table",
		ClarifyingQuestion: &question,
	}
}

func flattenCandidates(snapshot model.SchemaSnapshot, connectionIDs []int64) []tableCandidate {
	inScope := make(map[int64]bool, len(connectionIDs))
	for _, id := range connectionIDs {
		inScope[id] = true
	}
	out := make([]tableCandidate, 0, len(snapshot.Tables))
	for _, t := range snapshot.Tables {
		if len(connectionIDs) > 0 && !inScope[t.ConnectionID] {
			continue
		}
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name)
		}
		out = append(out, tableCandidate{connectionID: t.ConnectionID, schema: t.Schema, name: t.Name, columns: cols})
	}
	return out
}

// selectTable prefers a word-boundary match of the table name in the
// question, then a plain substring match; falls back to the lone
// candidate when the snapshot has exactly one table.
func selectTable(question string, candidates []tableCandidate) (tableCandidate, bool) {
	var wordMatches, substrMatches []tableCandidate
	for _, c := range candidates {
		if c.name == "" {
			continue
		}
		if wordBoundaryMatch(question, c.name) {
			wordMatches = append(wordMatches, c)
		} else if strings.Contains(question, strings.ToLower(c.name)) {
			substrMatches = append(substrMatches, c)
		}
	}
	if len(wordMatches) == 1 {
		return wordMatches[0], true
	}
	if len(wordMatches) == 0 && len(substrMatches) == 1 {
		return substrMatches[0], true
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return tableCandidate{}, false
}

func wordBoundaryMatch(haystack, name string) bool {
	pattern := `\b` + regexp.QuoteMeta(strings.ToLower(name)) + `\b`
	matched, err := regexp.MatchString(pattern, haystack)
	return err == nil && matched
}

func selectColumns(columns []string) []string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[strings.ToLower(c)] = true
	}
	var selected []string
	for _, preferred := range preferredColumns {
		if present[preferred] {
			selected = append(selected, preferred)
		}
		if len(selected) == 4 {
			return selected
		}
	}
	if len(selected) > 0 {
		return selected
	}
	if len(columns) >= 4 {
		return columns[:4]
	}
	if len(columns) > 0 {
		return columns
	}
	return []string{"*"}
}

func selectPreferred(columns []string, preference []string, fallback string) string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[strings.ToLower(c)] = true
	}
	for _, p := range preference {
		if present[p] {
			return p
		}
	}
	return fallback
}

func selectLimit(question string, maxRows int) int {
	limit := defaultLimit
	if m := limitCapturePattern.FindStringSubmatch(question); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			limit = n
		}
	}
	if maxRows > 0 && limit > maxRows {
		limit = maxRows
	}
	return limit
}
