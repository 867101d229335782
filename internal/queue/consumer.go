package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsumerConfig holds the stream/group/consumer identity and retry
// knobs for a single-stream, single-task-type consumer group worker.
type ConsumerConfig struct {
	Stream       string
	Group        string
	Consumer     string
	DLQStream    string
	BatchSize    int64
	Block        time.Duration
	MaxAttempts  int
	RequeueDelay time.Duration
}

// Message is a parsed ScanCompletedTask plus the delivery metadata
// needed to ack, requeue, or dead-letter it.
type Message struct {
	ID   string
	Task ScanCompletedTask
	Raw  redis.XMessage
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	c := &RedisConsumer{client: client, cfg: cfg}
	if err := c.ensureGroup(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	if err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Read fetches the next batch of deliverable messages. A message that
// fails to parse is acked immediately (it will never parse on retry)
// and dropped, logged as an error rather than surfaced to the caller.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			msg, parseErr := parseMessage(raw)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse scan completed task",
					"error", parseErr, "raw_message_id", raw.ID, "stream", c.cfg.Stream)
				_ = c.Ack(ctx, Message{ID: raw.ID, Raw: raw})
				continue
			}
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue acks the current delivery and re-adds it with an
// incremented attempt count, or routes it to the DLQ once
// MaxAttempts is exceeded.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, reason string) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking before requeue: %w", err)
	}

	nextAttempt := msg.Task.Attempt + 1
	if c.cfg.MaxAttempts > 0 && nextAttempt > c.cfg.MaxAttempts {
		return c.sendDLQ(ctx, msg, reason)
	}

	if c.cfg.RequeueDelay > 0 {
		time.Sleep(c.cfg.RequeueDelay)
	}

	values := taskValues(msg.Task, nextAttempt)
	values["last_error"] = reason
	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.Stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	slog.InfoContext(ctx, "scan completed task requeued", "next_attempt", nextAttempt, "reason", reason)
	return nil
}

func (c *RedisConsumer) sendDLQ(ctx context.Context, msg Message, reason string) error {
	values := taskValues(msg.Task, msg.Task.Attempt)
	values["error"] = reason
	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DLQStream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}
	slog.ErrorContext(ctx, "scan completed task sent to dlq", "final_error", reason, "dlq_stream", c.cfg.DLQStream)
	return nil
}

func parseMessage(raw redis.XMessage) (Message, error) {
	connectionID, err := parseInt64(raw.Values, "connection_id")
	if err != nil {
		return Message{}, err
	}
	scanID, err := parseInt64(raw.Values, "scan_id")
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseInt(raw.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID: raw.ID,
		Task: ScanCompletedTask{
			ConnectionID: connectionID,
			ScanID:       scanID,
			Attempt:      attempt,
		},
		Raw: raw,
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	return strconv.ParseInt(fmt.Sprint(raw), 10, 64)
}

func parseInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	return strconv.Atoi(fmt.Sprint(raw))
}

func taskValues(task ScanCompletedTask, attempt int) map[string]any {
	return map[string]any{
		"task_type":     string(TaskTypeScanCompleted),
		"connection_id": task.ConnectionID,
		"scan_id":       task.ScanID,
		"attempt":       attempt,
	}
}
