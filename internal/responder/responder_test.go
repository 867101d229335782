package responder

import (
	"context"
	"testing"

	"sqlrag.app/engine/common/llm"
	"sqlrag.app/engine/internal/model"
)

type fakeAgentClient struct {
	response string
	err      error
}

func (f *fakeAgentClient) ChatWithTools(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	return nil, nil
}

func (f *fakeAgentClient) ChatJSON(ctx context.Context, req llm.JSONRequest) (string, error) {
	return f.response, f.err
}

func (f *fakeAgentClient) Model() string { return "fake-model" }

func TestRespond_ParsesWellFormedJSON(t *testing.T) {
	client := &fakeAgentClient{response: `{"answer":"there are 3 assets","used_sql":[{"name":"q1","sql":"SELECT 1","rows_returned":3}],"assumptions":[],"caveats":[],"followups":[]}`}
	r := New(client)

	out := r.Respond(context.Background(), "system prompt", "how many assets?", model.SchemaSnapshot{}, nil)
	if out.Answer != "there are 3 assets" {
		t.Fatalf("unexpected answer: %q", out.Answer)
	}
	if len(out.UsedSQL) != 1 {
		t.Fatalf("expected 1 used_sql entry, got %d", len(out.UsedSQL))
	}
}

func TestRespond_StripsCodeFence(t *testing.T) {
	client := &fakeAgentClient{response: "```json\n{\"answer\":\"ok\",\"used_sql\":[],\"assumptions\":[],\"caveats\":[],\"followups\":[]}\n```"}
	r := New(client)

	out := r.Respond(context.Background(), "system prompt", "q", model.SchemaSnapshot{}, nil)
	if out.Answer != "ok" {
		t.Fatalf("expected fence-stripped parse to succeed, got %q (answer=%q)", out.Answer, out.Answer)
	}
}

func TestRespond_FallsBackOnMalformedJSON(t *testing.T) {
	client := &fakeAgentClient{response: "not json at all"}
	r := New(client)

	out := r.Respond(context.Background(), "system prompt", "q", model.SchemaSnapshot{}, nil)
	if out.Answer != apologyFallback {
		t.Fatalf("expected the fixed apology fallback, got %q", out.Answer)
	}
}

func TestRespond_FallsBackOnLLMError(t *testing.T) {
	client := &fakeAgentClient{err: context.DeadlineExceeded}
	r := New(client)

	out := r.Respond(context.Background(), "system prompt", "q", model.SchemaSnapshot{}, nil)
	if out.Answer != apologyFallback {
		t.Fatalf("expected the fixed apology fallback on LLM error, got %q", out.Answer)
	}
}
