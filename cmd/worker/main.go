package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sqlrag.app/engine/common/llm"
	"sqlrag.app/engine/common/logger"
	"sqlrag.app/engine/core/config"
	"sqlrag.app/engine/core/db"
	"sqlrag.app/engine/internal/queue"
	"sqlrag.app/engine/internal/retriever"
	"sqlrag.app/engine/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg := config.Load()
	logger.Setup(cfg)

	slog.InfoContext(ctx, "sqlrag reindex worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.Group,
		"consumer_name", cfg.Redis.Consumer)

	if cfg.Embedding.APIKey == "" {
		slog.ErrorContext(ctx, "OPENAI_API_KEY is required for the embedding role")
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.Stream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.Stream,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
		DLQStream:    cfg.Redis.DLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Redis.MaxAttempts,
		RequeueDelay: time.Duration(cfg.Redis.RequeueDelay) * time.Millisecond,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	embedder, err := llm.NewEmbedder(llm.Config{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create embedding client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "embedding client initialized", "model", cfg.Embedding.Model)

	dataStore := store.New(database.Queries())
	retr := retriever.New(embedder, dataStore)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go runLoop(ctx, &wg, consumer, retr, dataStore)

	slog.InfoContext(ctx, "worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownComplete := make(chan struct{})
	go func() {
		wg.Wait()
		close(shutdownComplete)
	}()

	shutdownTimeout := 30 * time.Second
	select {
	case <-shutdownComplete:
		slog.InfoContext(ctx, "graceful shutdown completed")
	case <-time.After(shutdownTimeout):
		slog.WarnContext(ctx, "shutdown timeout exceeded, forcing exit", "timeout", shutdownTimeout)
	}

	slog.InfoContext(ctx, "closing database connection")
	database.Close()

	slog.InfoContext(ctx, "closing redis connection")
	if err := redisClient.Close(); err != nil {
		slog.ErrorContext(ctx, "redis close error", "error", err)
	}

	slog.InfoContext(ctx, "shutdown complete")
}

func runLoop(ctx context.Context, wg *sync.WaitGroup, consumer *queue.RedisConsumer, retr *retriever.Retriever, dataStore *store.Store) {
	defer wg.Done()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "worker.loop"})
	slog.InfoContext(ctx, "worker loop started")

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "worker loop stopping")
			return
		default:
			messages, err := consumer.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.ErrorContext(ctx, "failed to read from stream", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for _, msg := range messages {
				if ctx.Err() != nil {
					slog.InfoContext(ctx, "shutdown requested, stopping message processing")
					return
				}
				processMessage(ctx, consumer, retr, dataStore, msg)
			}
		}
	}
}

func processMessage(ctx context.Context, consumer *queue.RedisConsumer, retr *retriever.Retriever, dataStore *store.Store, msg queue.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConnectionID: logger.Ptr(msg.Task.ConnectionID),
		ScanID:       logger.Ptr(msg.Task.ScanID),
	})

	slog.InfoContext(ctx, "processing scan completed task", "attempt", msg.Task.Attempt)

	count, err := retr.Reindex(ctx, dataStore, []int64{msg.Task.ScanID})
	if err != nil {
		slog.ErrorContext(ctx, "reindex failed", "error", err)
		if rerr := consumer.Requeue(ctx, msg, err.Error()); rerr != nil {
			slog.ErrorContext(ctx, "failed to requeue task", "error", rerr)
		}
		return
	}

	slog.InfoContext(ctx, "reindex completed", "reindexed_count", count)
	if err := consumer.Ack(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to ack message", "error", err)
	}
}

const banner = `
 ███████╗ ██████╗ ██╗     ██████╗  █████╗  ██████╗
 ██╔════╝██╔═══██╗██║     ██╔══██╗██╔══██╗██╔════╝
 ███████╗██║   ██║██║     ██████╔╝███████║██║  ███╗
 ╚════██║██║▄▄ ██║██║     ██╔══██╗██╔══██║██║   ██║
 ███████║╚██████╔╝███████╗██║  ██║██║  ██║╚██████╔╝
 ╚══════╝ ╚══▀▀═╝ ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝   worker
`
