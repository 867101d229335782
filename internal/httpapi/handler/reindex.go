package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sqlrag.app/engine/internal/httpapi/dto"
)

// ReindexHandler triggers the Vector Retriever's reindex pass for a
// collaborator-supplied scan set.
type ReindexHandler struct {
	reindex func(ctx context.Context, scanIDs []int64) (int, error)
}

// NewReindexHandler takes a closure instead of a concrete retriever
// type so the handler doesn't need to know the store's concrete type,
// only that calling it runs one reindex pass.
func NewReindexHandler(reindex func(ctx context.Context, scanIDs []int64) (int, error)) *ReindexHandler {
	return &ReindexHandler{reindex: reindex}
}

func (h *ReindexHandler) Reindex(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ReindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.reindex(ctx, req.ScanIDs)
	if err != nil {
		slog.ErrorContext(ctx, "reindex failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reindex failed"})
		return
	}

	c.JSON(http.StatusOK, dto.ReindexResponse{ReindexedCount: count})
}
