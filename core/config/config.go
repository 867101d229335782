package config

import (
	"fmt"
	"os"
	"strconv"

	"sqlrag.app/engine/core/db"
)

// Config holds all application configuration, loaded from environment
// variables with sensible development defaults.
type Config struct {
	Env  string
	Port string

	DB    db.Config
	OTel  OTelConfig
	Redis RedisConfig

	Planner   LLMConfig
	Responder LLMConfig
	Embedding LLMConfig

	DBDialect string

	SQLMaxQueries int
	SQLMaxRows    int
	SQLTimeoutMs  int

	PlannerRetryLimit int
	AgentSelectRounds int

	SchemaContextTablesLimit      int
	SchemaContextColumnsLimit     int
	SchemaContextSampleRowsLimit  int
	SchemaContextConstraintsLimit int
	SchemaContextIndexesLimit     int

	EngineCacheSize int

	RAGTopK     int
	RAGMinScore float64

	SampleRowsLimit int

	RateLimitPerMinute   int
	CORSOrigins          []string
	CORSAllowCredentials bool
	RequestIDHeader      string

	StaleScanMinutes int
}

// RedisConfig names the stream and consumer-group coordinates used by
// the scan-completed queue (internal/queue).
type RedisConfig struct {
	URL          string
	Stream       string
	Group        string
	Consumer     string
	DLQStream    string
	MaxAttempts  int
	RequeueDelay int
}

// LLMConfig names the model and endpoint used for one of the three LLM
// roles (planner, responder, embedding).
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OTelConfig controls optional OpenTelemetry trace export.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Headers        string
	TracingEnabled bool
}

func (o OTelConfig) Enabled() bool {
	return o.TracingEnabled && o.Endpoint != ""
}

// Load loads configuration from environment variables.
func Load() Config {
	return Config{
		Env:  getEnv("RELAY_ENV", getEnv("ENVIRONMENT", "development")),
		Port: getEnv("PORT", "8080"),
		DB: db.Config{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		OTel: OTelConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sqlrag-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			TracingEnabled: getEnvBool("OTEL_TRACING_ENABLED", false),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Stream:       getEnv("REDIS_SCAN_STREAM", "sqlrag:scan-completed"),
			Group:        getEnv("REDIS_CONSUMER_GROUP", "sqlrag-reindex"),
			Consumer:     getEnv("REDIS_CONSUMER_NAME", "worker-1"),
			DLQStream:    getEnv("REDIS_DLQ_STREAM", "sqlrag:scan-completed:dlq"),
			MaxAttempts:  getEnvInt("REDIS_MAX_ATTEMPTS", 3),
			RequeueDelay: getEnvInt("REDIS_REQUEUE_DELAY_MS", 1000),
		},
		Planner: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("PLANNER_MODEL", "gpt-5-codex"),
		},
		Responder: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("RESPONDER_MODEL", "gpt-5-codex"),
		},
		Embedding: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		DBDialect: getEnv("DB_DIALECT", "postgres"),

		SQLMaxQueries: getEnvInt("SQL_MAX_QUERIES", 3),
		SQLMaxRows:    getEnvInt("SQL_MAX_ROWS", 200),
		SQLTimeoutMs:  getEnvInt("SQL_TIMEOUT_MS", 5000),

		PlannerRetryLimit: getEnvInt("PLANNER_RETRY_LIMIT", 2),
		AgentSelectRounds: getEnvInt("AGENT_SELECT_ROUNDS", 3),

		SchemaContextTablesLimit:      getEnvInt("SCHEMA_CONTEXT_TABLES_LIMIT", 50),
		SchemaContextColumnsLimit:     getEnvInt("SCHEMA_CONTEXT_COLUMNS_LIMIT", 40),
		SchemaContextSampleRowsLimit:  getEnvInt("SCHEMA_CONTEXT_SAMPLE_ROWS_LIMIT", 3),
		SchemaContextConstraintsLimit: getEnvInt("SCHEMA_CONTEXT_CONSTRAINTS_LIMIT", 20),
		SchemaContextIndexesLimit:     getEnvInt("SCHEMA_CONTEXT_INDEXES_LIMIT", 20),

		EngineCacheSize: getEnvInt("ENGINE_CACHE_SIZE", 16),

		RAGTopK:     getEnvInt("RAG_TOP_K", 8),
		RAGMinScore: getEnvFloat("RAG_MIN_SCORE", 0.75),

		SampleRowsLimit: getEnvInt("SAMPLE_ROWS_LIMIT", 5),

		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSOrigins:          splitCSV(getEnv("CORS_ORIGINS", "*")),
		CORSAllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
		RequestIDHeader:      getEnv("REQUEST_ID_HEADER", "X-Request-ID"),

		StaleScanMinutes: getEnvInt("STALE_SCAN_MINUTES", 30),
	}
}

func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "sqlrag")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

func (c Config) IsProduction() bool  { return c.Env == "production" }
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// DialectSupported reports whether the configured dialect has a
// planner/executor implementation. Only postgres is supported today;
// any other value is a configuration error that the orchestrator
// surfaces as a fixed message before any external call.
func (c Config) DialectSupported() bool {
	return c.DBDialect == "postgres"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				out = append(out, value[start:i])
			}
			start = i + 1
		}
	}
	return out
}
