package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Producer enqueues scan-completed notifications for the reindex
// worker.
type Producer interface {
	Enqueue(ctx context.Context, task ScanCompletedTask) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client) Producer {
	return &redisProducer{client: client, stream: StreamName()}
}

func (p *redisProducer) Enqueue(ctx context.Context, task ScanCompletedTask) error {
	attempt := task.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	values := map[string]any{
		"task_type":     string(TaskTypeScanCompleted),
		"connection_id": task.ConnectionID,
		"scan_id":       task.ScanID,
		"attempt":       attempt,
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue scan completed task (stream=%s): %w", p.stream, err)
	}

	slog.InfoContext(ctx, "enqueued scan completed task",
		"connection_id", task.ConnectionID,
		"scan_id", task.ScanID,
		"attempt", attempt,
		"stream", p.stream)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
