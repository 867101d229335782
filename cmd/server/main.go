package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sqlrag.app/engine/common/id"
	"sqlrag.app/engine/common/llm"
	"sqlrag.app/engine/common/logger"
	"sqlrag.app/engine/common/otel"
	"sqlrag.app/engine/core/config"
	"sqlrag.app/engine/core/db"
	"sqlrag.app/engine/internal/enginecache"
	"sqlrag.app/engine/internal/executor"
	"sqlrag.app/engine/internal/httpapi/handler"
	"sqlrag.app/engine/internal/httpapi/router"
	"sqlrag.app/engine/internal/orchestrator"
	"sqlrag.app/engine/internal/planner"
	"sqlrag.app/engine/internal/predefined"
	"sqlrag.app/engine/internal/ratelimit"
	"sqlrag.app/engine/internal/responder"
	"sqlrag.app/engine/internal/retriever"
	"sqlrag.app/engine/internal/schemacontext"
	"sqlrag.app/engine/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg := config.Load()

	// OTel must init before logger: the logger's production handler
	// reads the global tracer/logger provider OTel installs.
	telemetry, err := otel.Setup(ctx, otel.Config{
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
		Endpoint:       cfg.OTel.Endpoint,
		Headers:        cfg.OTel.Headers,
		TracingEnabled: cfg.OTel.TracingEnabled,
	})
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "sqlrag engine starting", "env", cfg.Env, "dialect", cfg.DBDialect)

	if !cfg.DialectSupported() {
		slog.ErrorContext(ctx, "unsupported DB_DIALECT", "dialect", cfg.DBDialect)
		os.Exit(1)
	}

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
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

	dataStore := store.New(database.Queries())
	decryptor := store.PassthroughDecryptor{}

	cache := enginecache.New(cfg.EngineCacheSize, newDialer(dataStore, decryptor, cfg.DBDialect))
	defer cache.Close()

	registry, err := predefined.Load(ctx, dataStore)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load predefined query registry", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "predefined query registry loaded", "count", registry.Len())

	if cfg.Planner.APIKey == "" || cfg.Responder.APIKey == "" || cfg.Embedding.APIKey == "" {
		slog.ErrorContext(ctx, "OPENAI_API_KEY is required for the planner, responder and embedding roles")
		os.Exit(1)
	}

	plannerClient, err := llm.NewAgentClient(llm.Config{
		APIKey:  cfg.Planner.APIKey,
		BaseURL: cfg.Planner.BaseURL,
		Model:   cfg.Planner.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create planner client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "planner client initialized", "model", cfg.Planner.Model)

	responderClient, err := llm.NewAgentClient(llm.Config{
		APIKey:  cfg.Responder.APIKey,
		BaseURL: cfg.Responder.BaseURL,
		Model:   cfg.Responder.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create responder client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "responder client initialized", "model", cfg.Responder.Model)

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

	runner := executor.NewPoolRunner(cache)
	exec := executor.New(dataStore, runner, executor.Config{
		MaxQueries: cfg.SQLMaxQueries,
		MaxRows:    cfg.SQLMaxRows,
		TimeoutMs:  cfg.SQLTimeoutMs,
	})

	loop := planner.NewLoop(plannerClient, planner.DefaultSystemPrompt, registry, exec, planner.Config{
		PlannerRetryLimit: cfg.PlannerRetryLimit,
		AgentSelectRounds: cfg.AgentSelectRounds,
		MaxQueries:        cfg.SQLMaxQueries,
		MaxRows:            cfg.SQLMaxRows,
		TimeoutMs:          cfg.SQLTimeoutMs,
	})

	respond := responder.New(responderClient)

	builder := schemacontext.NewBuilder(dataStore)
	reconciler := schemacontext.NewReconciler(dataStore)

	orch := orchestrator.New(reconciler, builder, loop, respond, registry, orchestrator.Config{
		Dialect:          cfg.DBDialect,
		StaleScanMinutes: cfg.StaleScanMinutes,
		SchemaLimits: schemacontext.Limits{
			Tables:      cfg.SchemaContextTablesLimit,
			Columns:     cfg.SchemaContextColumnsLimit,
			SampleRows:  cfg.SchemaContextSampleRowsLimit,
			Constraints: cfg.SchemaContextConstraintsLimit,
			Indexes:     cfg.SchemaContextIndexesLimit,
		},
		SampleRowsLimit: cfg.SampleRowsLimit,
	})

	retr := retriever.New(embedder, dataStore)
	limiter := ratelimit.New(cfg.RateLimitPerMinute, time.Minute)

	orchestrateHandler := handler.NewOrchestrateHandler(orch)
	reindexHandler := handler.NewReindexHandler(func(ctx context.Context, scanIDs []int64) (int, error) {
		return retr.Reindex(ctx, dataStore, scanIDs)
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := router.Config{
		CORSOrigins:          cfg.CORSOrigins,
		CORSAllowCredentials: cfg.CORSAllowCredentials,
		RequestIDHeader:      cfg.RequestIDHeader,
	}
	if cfg.OTel.Enabled() {
		routerCfg.OTelServiceName = cfg.OTel.ServiceName
	}
	r := router.New(routerCfg, limiter, orchestrateHandler, reindexHandler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// newDialer builds the Engine Cache's Dialer: on a cache miss it loads
// the connection's encrypted DSN, resolves it through the configured
// CredentialDecryptor, and opens a fresh pgxpool against the target
// database.
func newDialer(dataStore *store.Store, decryptor store.CredentialDecryptor, dialect string) enginecache.Dialer {
	return func(ctx context.Context, connectionID int64) (*enginecache.Engine, error) {
		encrypted, err := dataStore.GetConnectionEncryptedDSN(ctx, connectionID)
		if err != nil {
			return nil, fmt.Errorf("loading encrypted DSN: %w", err)
		}

		dsn, err := decryptor.Decrypt(ctx, connectionID, encrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypting DSN: %w", err)
		}

		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("opening pool: %w", err)
		}

		return &enginecache.Engine{Pool: pool, Dialect: dialect}, nil
	}
}

const banner = `
 ███████╗ ██████╗ ██╗     ██████╗  █████╗  ██████╗
 ██╔════╝██╔═══██╗██║     ██╔══██╗██╔══██╗██╔════╝
 ███████╗██║   ██║██║     ██████╔╝███████║██║  ███╗
 ╚════██║██║▄▄ ██║██║     ██╔══██╗██╔══██║██║   ██║
 ███████║╚██████╔╝███████╗██║  ██║██║  ██║╚██████╔╝
 ╚══════╝ ╚══▀▀═╝ ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝   engine
`
