package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"sqlrag.app/engine/internal/model"
	"sqlrag.app/engine/internal/planner"
	"sqlrag.app/engine/internal/predefined"
	"sqlrag.app/engine/internal/schemacontext"
)

type fakeReconciler struct {
	promoted, failed int
	err              error
	calls            int
}

func (f *fakeReconciler) Reconcile(ctx context.Context, connectionIDs []int64, staleAfter time.Duration) (int, int, error) {
	f.calls++
	return f.promoted, f.failed, f.err
}

type fakeBuilder struct {
	snapshot  model.SchemaSnapshot
	allowlist model.Allowlist
	err       error
}

func (f *fakeBuilder) Build(ctx context.Context, connectionIDs []int64, limits schemacontext.Limits) (model.SchemaSnapshot, model.Allowlist, error) {
	return f.snapshot, f.allowlist, f.err
}

type fakeLoop struct {
	result planner.Result
	calls  int
}

func (f *fakeLoop) Run(ctx context.Context, question, dialect string, connectionIDs []int64, conversationContext []string, snapshot model.SchemaSnapshot, allowlist model.Allowlist, predefinedQueries []model.PredefinedQuery) planner.Result {
	f.calls++
	return f.result
}

type fakeResponder struct {
	output model.ResponderOutput
	calls  int
}

func (f *fakeResponder) Respond(ctx context.Context, systemPrompt, question string, snapshot model.SchemaSnapshot, results []model.SQLResult) model.ResponderOutput {
	f.calls++
	return f.output
}

func emptyRegistry(t *testing.T) *predefined.Registry {
	t.Helper()
	r, err := predefined.Load(context.Background(), stubStore{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

type stubStore struct{}

func (stubStore) ListPredefinedQueries(ctx context.Context) ([]model.PredefinedQuery, error) {
	return nil, nil
}

func TestOrchestrate_UnsupportedDialectReturnsConfigurationError(t *testing.T) {
	reconciler := &fakeReconciler{}
	builder := &fakeBuilder{}
	loop := &fakeLoop{}
	responder := &fakeResponder{}

	o := New(reconciler, builder, loop, responder, emptyRegistry(t), Config{Dialect: "mysql"})
	_, err := o.Orchestrate(context.Background(), Input{Question: "anything", ConnectionIDs: []int64{1}})

	var orchErr *Error
	if !errors.As(err, &orchErr) || orchErr.Kind != KindConfiguration {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if reconciler.calls != 0 || loop.calls != 0 || responder.calls != 0 {
		t.Fatalf("expected orchestration to short-circuit before any reconcile/plan/respond call")
	}
}

func TestOrchestrate_CatalogAbsentReturnsFixedError(t *testing.T) {
	reconciler := &fakeReconciler{}
	builder := &fakeBuilder{err: schemacontext.ErrNoCatalog}
	loop := &fakeLoop{}
	responder := &fakeResponder{}

	o := New(reconciler, builder, loop, responder, emptyRegistry(t), Config{Dialect: "postgres"})
	_, err := o.Orchestrate(context.Background(), Input{Question: "anything", ConnectionIDs: nil})

	var orchErr *Error
	if !errors.As(err, &orchErr) || orchErr.Kind != KindCatalogAbsent {
		t.Fatalf("expected a catalog-absent error, got %v", err)
	}
	if loop.calls != 0 {
		t.Fatalf("expected the planner loop to never run when the catalog is absent")
	}
}

func TestOrchestrate_FinalAnswerBypassesResponder(t *testing.T) {
	reconciler := &fakeReconciler{}
	builder := &fakeBuilder{}
	answer := "please clarify which table you mean"
	loop := &fakeLoop{result: planner.Result{FinalAnswer: &answer}}
	responder := &fakeResponder{}

	o := New(reconciler, builder, loop, responder, emptyRegistry(t), Config{Dialect: "postgres", SampleRowsLimit: 3})
	out, err := o.Orchestrate(context.Background(), Input{Question: "q", ConnectionIDs: []int64{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != answer {
		t.Fatalf("expected the loop's final answer to pass through, got %q", out.Answer)
	}
	if responder.calls != 0 {
		t.Fatalf("expected the responder to be bypassed, got %d calls", responder.calls)
	}
}

func TestOrchestrate_SuccessfulRunCallsResponder(t *testing.T) {
	reconciler := &fakeReconciler{}
	builder := &fakeBuilder{}
	loop := &fakeLoop{result: planner.Result{SQLResults: []model.SQLResult{{ExecutedQueryRecord: model.ExecutedQueryRecord{Name: "q1"}, Rows: []map[string]any{{"id": 1}, {"id": 2}}}}}}
	responder := &fakeResponder{output: model.ResponderOutput{Answer: "there are 2 rows"}}

	o := New(reconciler, builder, loop, responder, emptyRegistry(t), Config{Dialect: "postgres", SampleRowsLimit: 1})
	out, err := o.Orchestrate(context.Background(), Input{Question: "how many rows?", ConnectionIDs: []int64{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "there are 2 rows" {
		t.Fatalf("unexpected answer: %q", out.Answer)
	}
	if responder.calls != 1 {
		t.Fatalf("expected the responder to run exactly once, got %d", responder.calls)
	}
	if out.ToolPayload == "" || out.ToolPayload == "[]" {
		t.Fatalf("expected a non-trivial tool payload, got %q", out.ToolPayload)
	}
}

func TestOrchestrate_ReconcileFailureDoesNotAbortOrchestration(t *testing.T) {
	reconciler := &fakeReconciler{err: errors.New("db unavailable")}
	builder := &fakeBuilder{}
	loop := &fakeLoop{result: planner.Result{SQLResults: nil}}
	responder := &fakeResponder{output: model.ResponderOutput{Answer: "ok"}}

	o := New(reconciler, builder, loop, responder, emptyRegistry(t), Config{Dialect: "postgres"})
	out, err := o.Orchestrate(context.Background(), Input{Question: "q", ConnectionIDs: []int64{1}})
	if err != nil {
		t.Fatalf("expected reconcile failures to be non-fatal, got %v", err)
	}
	if out.Answer != "ok" {
		t.Fatalf("unexpected answer: %q", out.Answer)
	}
	if reconciler.calls != 1 {
		t.Fatalf("expected the reconciler to have been invoked")
	}
}
