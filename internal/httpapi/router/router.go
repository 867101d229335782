// Package router wires the HTTP surface: one liveness probe and the
// two operations a collaborator drives the core through, orchestrate
// and reindex.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"sqlrag.app/engine/internal/httpapi/handler"
	"sqlrag.app/engine/internal/httpapi/middleware"
	"sqlrag.app/engine/internal/ratelimit"
)

// Config controls cross-cutting HTTP behaviour.
type Config struct {
	CORSOrigins          []string
	CORSAllowCredentials bool
	RequestIDHeader      string

	// OTelServiceName, if non-empty, installs otelgin's span-per-request
	// middleware ahead of everything else so Recovery and Logger run
	// inside an active span.
	OTelServiceName string
}

func New(cfg Config, limiter *ratelimit.Limiter, orchestrateHandler *handler.OrchestrateHandler, reindexHandler *handler.ReindexHandler) *gin.Engine {
	r := gin.New()

	// Order matters: OTel creates the span before Recovery catches a
	// panic and Logger logs with the resulting trace context.
	if cfg.OTelServiceName != "" {
		r.Use(otelgin.Middleware(cfg.OTelServiceName))
	}
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID(cfg.RequestIDHeader))
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORSOrigins, cfg.CORSAllowCredentials))

	r.GET("/health", handler.Health)

	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimit(limiter))
	{
		v1.POST("/orchestrate", orchestrateHandler.Orchestrate)
		v1.POST("/reindex", reindexHandler.Reindex)
	}

	return r
}
