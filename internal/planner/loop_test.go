package planner

import (
	"context"
	"testing"

	"sqlrag.app/engine/common/llm"
	"sqlrag.app/engine/internal/model"
	"sqlrag.app/engine/internal/predefined"
)

type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) ChatWithTools(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	return nil, nil
}

func (c *scriptedClient) ChatJSON(ctx context.Context, req llm.JSONRequest) (string, error) {
	if c.calls >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	r := c.responses[c.calls]
	c.calls++
	return r, nil
}

func (c *scriptedClient) Model() string { return "scripted" }

type fakeExecutor struct {
	results []model.SQLResult
	err     error
	calls   int
}

func (f *fakeExecutor) Run(ctx context.Context, queries []model.PlannerQuery, allowlist model.Allowlist, scopeConnectionIDs []int64, defaultConnectionID int64) ([]model.SQLResult, error) {
	f.calls++
	return f.results, f.err
}

func emptyRegistry(t *testing.T) *predefined.Registry {
	t.Helper()
	r, err := predefined.Load(context.Background(), &stubPredefinedStore{})
	if err != nil {
		t.Fatalf("unexpected error loading registry: %v", err)
	}
	return r
}

type stubPredefinedStore struct{}

func (stubPredefinedStore) ListPredefinedQueries(ctx context.Context) ([]model.PredefinedQuery, error) {
	return nil, nil
}

func TestLoop_RunSelectsDispatchesToExecutor(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"decision":"run_selects","reason":"ok","queries":[{"name":"q1","purpose":"p","sql":"SELECT 1"}]}`,
	}}
	exec := &fakeExecutor{results: []model.SQLResult{{ExecutedQueryRecord: model.ExecutedQueryRecord{Name: "q1", RowsReturned: 1}}}}
	loop := NewLoop(client, "system", emptyRegistry(t), exec, Config{PlannerRetryLimit: 1, AgentSelectRounds: 1, MaxQueries: 5, MaxRows: 100})

	result := loop.Run(context.Background(), "how many rows?", "postgres", []int64{1}, nil, model.SchemaSnapshot{}, model.Allowlist{}, nil)
	if result.FinalAnswer != nil {
		t.Fatalf("expected no final answer, got %q", *result.FinalAnswer)
	}
	if len(result.SQLResults) != 1 {
		t.Fatalf("expected 1 sql result, got %d", len(result.SQLResults))
	}
	if exec.calls != 1 {
		t.Fatalf("expected executor to be called once, got %d", exec.calls)
	}
}

func TestLoop_NoSQLNeededSkipsExecutor(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"decision":"no_sql_needed","reason":"just chatting"}`}}
	exec := &fakeExecutor{}
	loop := NewLoop(client, "system", emptyRegistry(t), exec, Config{PlannerRetryLimit: 1, AgentSelectRounds: 1})

	result := loop.Run(context.Background(), "hello", "postgres", []int64{1}, nil, model.SchemaSnapshot{}, model.Allowlist{}, nil)
	if result.FinalAnswer != nil {
		t.Fatalf("expected no final answer for no_sql_needed, got %q", *result.FinalAnswer)
	}
	if exec.calls != 0 {
		t.Fatalf("expected executor never invoked, got %d calls", exec.calls)
	}
}

func TestLoop_RefuseReturnsReasonAsFinalAnswer(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"decision":"refuse","reason":"this requires write access"}`}}
	exec := &fakeExecutor{}
	loop := NewLoop(client, "system", emptyRegistry(t), exec, Config{PlannerRetryLimit: 1, AgentSelectRounds: 1})

	result := loop.Run(context.Background(), "delete everything", "postgres", []int64{1}, nil, model.SchemaSnapshot{}, model.Allowlist{}, nil)
	if result.FinalAnswer == nil || *result.FinalAnswer != "this requires write access" {
		t.Fatalf("expected refusal reason as final answer, got %+v", result.FinalAnswer)
	}
}

func TestLoop_FallsBackOnMalformedJSONWithMatchingIntent(t *testing.T) {
	client := &scriptedClient{responses: []string{"not json at all"}}
	exec := &fakeExecutor{results: []model.SQLResult{{ExecutedQueryRecord: model.ExecutedQueryRecord{Name: "fallback_query", RowsReturned: 5}}}}
	snapshot := model.SchemaSnapshot{Tables: []model.CatalogTable{{ConnectionID: 1, Schema: "public", Name: "assets", Columns: []model.CatalogColumn{{Name: "id"}, {Name: "name"}}}}}
	loop := NewLoop(client, "system", emptyRegistry(t), exec, Config{PlannerRetryLimit: 1, AgentSelectRounds: 1, MaxRows: 100})

	result := loop.Run(context.Background(), "cite 5 assets", "postgres", []int64{1}, nil, snapshot, model.Allowlist{}, nil)
	if result.FinalAnswer != nil {
		t.Fatalf("expected fallback to produce sql_results rather than a final answer, got %q", *result.FinalAnswer)
	}
	if exec.calls != 1 {
		t.Fatalf("expected the fallback decision to reach the executor, got %d calls", exec.calls)
	}
}

func TestLoop_ExhaustsRetriesAndReturnsGenericMessage(t *testing.T) {
	client := &scriptedClient{responses: []string{"still not json", "still not json"}}
	exec := &fakeExecutor{}
	loop := NewLoop(client, "system", emptyRegistry(t), exec, Config{PlannerRetryLimit: 1, AgentSelectRounds: 1})

	result := loop.Run(context.Background(), "olá, tudo bem?", "postgres", []int64{1}, nil, model.SchemaSnapshot{}, model.Allowlist{}, nil)
	if result.FinalAnswer == nil || *result.FinalAnswer != genericRephraseMessage {
		t.Fatalf("expected the generic rephrase message, got %+v", result.FinalAnswer)
	}
}

func TestLoop_UsePredefinedResolvesFromRegistry(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"decision":"use_predefined","reason":"matches a known report","predefined_query_id":"top-assets"}`}}
	exec := &fakeExecutor{results: []model.SQLResult{{ExecutedQueryRecord: model.ExecutedQueryRecord{Name: "top_assets", RowsReturned: 10}}}}

	store := &stubPredefinedStoreWithRows{rows: []model.PredefinedQuery{{ID: "top-assets", Name: "top_assets", SQLTemplate: "SELECT * FROM assets LIMIT 10"}}}
	registry, err := predefined.Load(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loop := NewLoop(client, "system", registry, exec, Config{PlannerRetryLimit: 1, AgentSelectRounds: 1, MaxQueries: 5})
	result := loop.Run(context.Background(), "show me the top assets report", "postgres", []int64{1}, nil, model.SchemaSnapshot{}, model.Allowlist{}, nil)

	if result.FinalAnswer != nil {
		t.Fatalf("expected no final answer, got %q", *result.FinalAnswer)
	}
	if exec.calls != 1 {
		t.Fatalf("expected executor called once with the resolved template, got %d", exec.calls)
	}
}

type stubPredefinedStoreWithRows struct {
	rows []model.PredefinedQuery
}

func (s *stubPredefinedStoreWithRows) ListPredefinedQueries(ctx context.Context) ([]model.PredefinedQuery, error) {
	return s.rows, nil
}
