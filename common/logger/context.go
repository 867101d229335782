package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs
// within a context. Fields flow through context enrichment, so
// request-scoped identifiers (connection, scan, request) reach every
// log line emitted downstream without being threaded through call
// signatures.
type LogFields struct {
	RequestID    *string // HTTP request / orchestration run ID
	ConnectionID *int64  // Target database connection
	ScanID       *int64  // Catalog scan a log line concerns
	EngineID     *string // Engine Cache entry key
	Component    string  // Component name (e.g. "orchestrator", "sqlvalidator")
}

// WithLogFields enriches context with structured log fields. Multiple
// calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context. Returns an empty
// LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.RequestID != nil {
		result.RequestID = next.RequestID
	}
	if next.ConnectionID != nil {
		result.ConnectionID = next.ConnectionID
	}
	if next.ScanID != nil {
		result.ScanID = next.ScanID
	}
	if next.EngineID != nil {
		result.EngineID = next.EngineID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr creates a pointer from a value, for inline LogFields literals:
// logger.WithLogFields(ctx, logger.LogFields{ConnectionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging SQL text or long LLM responses.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
