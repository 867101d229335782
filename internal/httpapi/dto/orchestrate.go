package dto

import "sqlrag.app/engine/internal/model"

// OrchestrateRequest is the POST /v1/orchestrate body.
type OrchestrateRequest struct {
	Question            string   `json:"question" binding:"required"`
	ConnectionIDs        []int64  `json:"connection_ids" binding:"required,min=1"`
	ConversationContext  []string `json:"conversation_context"`
	AgentSystemPrompt    string   `json:"agent_system_prompt"`
}

// OrchestrateResponse is the POST /v1/orchestrate response body,
// mirroring the orchestrator's public Output shape.
type OrchestrateResponse struct {
	Answer          string                      `json:"answer"`
	UsedSQL         []model.ResponderUsedSQL     `json:"used_sql,omitempty"`
	Assumptions     []string                     `json:"assumptions,omitempty"`
	Caveats         []string                     `json:"caveats,omitempty"`
	Followups       []string                     `json:"followups,omitempty"`
	ExecutedQueries []model.ExecutedQueryRecord   `json:"executed_queries"`
	ToolPayload     string                        `json:"tool_payload,omitempty"`
}

// ReindexRequest is the POST /v1/reindex body.
type ReindexRequest struct {
	ScanIDs []int64 `json:"scan_ids"`
}

// ReindexResponse reports how many catalog entities were reindexed.
type ReindexResponse struct {
	ReindexedCount int `json:"reindexed_count"`
}
