package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sqlrag.app/engine/internal/httpapi/dto"
	"sqlrag.app/engine/internal/model"
	"sqlrag.app/engine/internal/orchestrator"
)

// OrchestrateHandler wraps the core Orchestrator for the HTTP surface.
type OrchestrateHandler struct {
	orchestrator *orchestrator.Orchestrator
}

func NewOrchestrateHandler(o *orchestrator.Orchestrator) *OrchestrateHandler {
	return &OrchestrateHandler{orchestrator: o}
}

func (h *OrchestrateHandler) Orchestrate(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.OrchestrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.orchestrator.Orchestrate(ctx, orchestrator.Input{
		Question:            req.Question,
		ConnectionIDs:       req.ConnectionIDs,
		ConversationContext: req.ConversationContext,
		AgentSystemPrompt:   req.AgentSystemPrompt,
	})
	if err != nil {
		var orchErr *orchestrator.Error
		if errors.As(err, &orchErr) {
			status := http.StatusInternalServerError
			switch orchErr.Kind {
			case orchestrator.KindConfiguration, orchestrator.KindCatalogAbsent:
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, dto.OrchestrateResponse{
				Answer:          orchErr.Message,
				ExecutedQueries: []model.ExecutedQueryRecord{},
			})
			return
		}

		slog.ErrorContext(ctx, "orchestration failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, dto.OrchestrateResponse{
		Answer:          out.Answer,
		UsedSQL:         out.UsedSQL,
		Assumptions:     out.Assumptions,
		Caveats:         out.Caveats,
		Followups:       out.Followups,
		ExecutedQueries: out.ExecutedQueries,
		ToolPayload:     out.ToolPayload,
	})
}
