package queue

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestParseMessage_RoundTripsTaskValues(t *testing.T) {
	task := ScanCompletedTask{ConnectionID: 7, ScanID: 42, Attempt: 2}
	raw := redis.XMessage{ID: "1-0", Values: taskValues(task, task.Attempt)}

	msg, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Task != task {
		t.Fatalf("expected %+v, got %+v", task, msg.Task)
	}
}

func TestParseMessage_MissingConnectionIDErrors(t *testing.T) {
	raw := redis.XMessage{ID: "1-0", Values: map[string]any{"scan_id": "1", "attempt": "1"}}
	if _, err := parseMessage(raw); err == nil {
		t.Fatalf("expected an error for a message missing connection_id")
	}
}

func TestParseMessage_DefaultsAttemptToOne(t *testing.T) {
	raw := redis.XMessage{ID: "1-0", Values: map[string]any{"connection_id": "1", "scan_id": "2"}}
	msg, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Task.Attempt != 1 {
		t.Fatalf("expected a default attempt of 1, got %d", msg.Task.Attempt)
	}
}
