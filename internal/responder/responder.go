// Package responder turns the question, schema snapshot and executed
// SQL results into the final natural-language answer, via a single
// JSON-mode LLM call with a fixed apology fallback on parse failure.
package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"sqlrag.app/engine/common/llm"
	"sqlrag.app/engine/internal/model"
)

// apologyFallback is returned verbatim whenever the Responder LLM's
// output cannot be parsed into the expected shape.
const apologyFallback = "I wasn't able to put together a reliable answer from the data available. Could you rephrase the question or narrow its scope?"

// Responder composes the final answer from executed SQL results.
type Responder struct {
	llmClient llm.AgentClient
}

func New(llmClient llm.AgentClient) *Responder {
	return &Responder{llmClient: llmClient}
}

// Respond asks the Responder LLM to compose an answer. systemPrompt is
// a passthrough string supplied by the collaborator configuring this
// deployment; it is never generated by this package. On any parse or
// validation failure, Respond returns the fixed apology string instead
// of propagating an error, since a partial or malformed answer is
// worse than a generic one.
func (r *Responder) Respond(ctx context.Context, systemPrompt, question string, snapshot model.SchemaSnapshot, results []model.SQLResult) model.ResponderOutput {
	payload := buildPayload(question, snapshot, results)

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: payload},
	}

	raw, err := r.llmClient.ChatJSON(ctx, llm.JSONRequest{Messages: messages, MaxTokens: 2048})
	if err != nil {
		slog.ErrorContext(ctx, "responder llm call failed", "error", err)
		return model.ResponderOutput{Answer: apologyFallback}
	}

	output, err := parseResponderOutput(raw)
	if err != nil {
		slog.WarnContext(ctx, "responder output failed to parse", "error", err)
		return model.ResponderOutput{Answer: apologyFallback}
	}

	return output
}

func parseResponderOutput(raw string) (model.ResponderOutput, error) {
	cleaned := stripFence(raw)
	var out model.ResponderOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return model.ResponderOutput{}, fmt.Errorf("unmarshalling responder output: %w", err)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return model.ResponderOutput{}, fmt.Errorf("responder output has an empty answer")
	}
	return out, nil
}

// stripFence removes a leading/trailing triple-backtick code fence and
// an optional "json" language tag, matching the same loosely-formatted
// LLM output the Planner Loop tolerates.
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

func buildPayload(question string, snapshot model.SchemaSnapshot, results []model.SQLResult) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nSchema tables: ")
	for i, t := range snapshot.Tables {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Identifier())
	}
	b.WriteString("\n\nExecuted queries:\n")
	for _, res := range results {
		b.WriteString(fmt.Sprintf("- %s: %s (%d rows, truncated=%v)\n", res.Name, res.SQL, res.RowsReturned, res.Truncated))
		if res.Err != "" {
			b.WriteString(fmt.Sprintf("  error: %s\n", res.Err))
			continue
		}
		rowsJSON, err := json.Marshal(res.Rows)
		if err == nil {
			b.WriteString("  rows: ")
			b.Write(rowsJSON)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nRespond with a JSON object: {\"answer\": string, \"used_sql\": [{\"name\":string,\"sql\":string,\"rows_returned\":int}], \"assumptions\": [string], \"caveats\": [string], \"followups\": [string]}.")
	return b.String()
}
