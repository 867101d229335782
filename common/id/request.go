package id

import "github.com/google/uuid"

// NewRequestID generates a string identifier for one orchestration
// run, carried through logging, the request-ID response header, and
// the tool payload's request_id. Request IDs are UUIDs rather than
// Snowflake IDs because they never need to sort chronologically and
// must be safe to hand back to an external HTTP caller.
func NewRequestID() string {
	return uuid.NewString()
}
