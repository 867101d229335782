package fallback

import (
	"strings"
	"testing"

	"sqlrag.app/engine/internal/model"
)

func assetsSnapshot(columns ...string) model.SchemaSnapshot {
	return model.SchemaSnapshot{
		Tables: []model.CatalogTable{
			{
				ConnectionID: 1,
				Schema:       "public",
				Name:         "assets",
				Columns:      columnsOf(columns),
			},
		},
	}
}

func columnsOf(names []string) []model.CatalogColumn {
	out := make([]model.CatalogColumn, 0, len(names))
	for _, n := range names {
		out = append(out, model.CatalogColumn{Name: n})
	}
	return out
}

func TestPlan_ListIntentWithExplicitLimit(t *testing.T) {
	snapshot := assetsSnapshot("id", "name")
	decision := Plan("quais assets nós temos na tabela? cite 5", snapshot, []int64{1}, 100)

	if decision.Decision != model.DecisionRunSelects {
		t.Fatalf("expected run_selects, got %s (%s)", decision.Decision, decision.Reason)
	}
	if len(decision.Queries) != 1 {
		t.Fatalf("expected exactly one query, got %d", len(decision.Queries))
	}
	got := decision.Queries[0].SQL
	want := "SELECT id, name FROM public.assets ORDER BY id DESC LIMIT 5"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPlan_ExtremumIntent(t *testing.T) {
	snapshot := assetsSnapshot("id", "value", "name")
	decision := Plan("qual asset com maior valor?", snapshot, []int64{1}, 100)

	if decision.Decision != model.DecisionRunSelects {
		t.Fatalf("expected run_selects, got %s", decision.Decision)
	}
	sql := decision.Queries[0].SQL
	if !strings.Contains(sql, "ORDER BY value DESC") {
		t.Fatalf("expected ORDER BY value DESC, got %q", sql)
	}
	if !strings.HasSuffix(sql, "LIMIT 1") {
		t.Fatalf("expected query to end with LIMIT 1, got %q", sql)
	}
}

func TestPlan_ExtremumAscendingOnMenor(t *testing.T) {
	snapshot := assetsSnapshot("id", "value")
	decision := Plan("qual o menor valor?", snapshot, []int64{1}, 100)

	sql := decision.Queries[0].SQL
	if !strings.Contains(sql, "ORDER BY value ASC") {
		t.Fatalf("expected ascending order for 'menor', got %q", sql)
	}
}

func TestPlan_LimitCappedAtMaxRows(t *testing.T) {
	snapshot := assetsSnapshot("id", "name")
	decision := Plan("liste 50 registros", snapshot, []int64{1}, 10)

	if !strings.HasSuffix(decision.Queries[0].SQL, "LIMIT 10") {
		t.Fatalf("expected limit capped to max_rows, got %q", decision.Queries[0].SQL)
	}
}

func TestPlan_NoIntentReturnsNoSQLNeeded(t *testing.T) {
	snapshot := assetsSnapshot("id", "name")
	decision := Plan("olá, tudo bem?", snapshot, []int64{1}, 100)

	if decision.Decision != model.DecisionNoSQLNeeded {
		t.Fatalf("expected no_sql_needed, got %s", decision.Decision)
	}
}

func TestPlan_AmbiguousTablesNeedClarification(t *testing.T) {
	snapshot := model.SchemaSnapshot{
		Tables: []model.CatalogTable{
			{ConnectionID: 1, Schema: "public", Name: "assets", Columns: columnsOf([]string{"id"})},
			{ConnectionID: 1, Schema: "public", Name: "orders", Columns: columnsOf([]string{"id"})},
		},
	}
	decision := Plan("liste os registros", snapshot, []int64{1}, 100)

	if decision.Decision != model.DecisionNeedClarification {
		t.Fatalf("expected need_clarification, got %s", decision.Decision)
	}
	if decision.ClarifyingQuestion == nil || *decision.ClarifyingQuestion == "" {
		t.Fatalf("expected a clarifying question to be set")
	}
}

func TestPlan_SingleTableUsedWhenNoNameMatches(t *testing.T) {
	snapshot := assetsSnapshot("id", "name")
	decision := Plan("cite os registros", snapshot, []int64{1}, 100)

	if decision.Decision != model.DecisionRunSelects {
		t.Fatalf("expected run_selects with the lone table used, got %s", decision.Decision)
	}
}

func TestMatchesIntent(t *testing.T) {
	if !MatchesIntent("cite 5 assets") {
		t.Fatalf("expected list intent to match")
	}
	if !MatchesIntent("qual o maior valor?") {
		t.Fatalf("expected extremum intent to match")
	}
	if MatchesIntent("olá, tudo bem?") {
		t.Fatalf("expected no intent match on a greeting")
	}
}
