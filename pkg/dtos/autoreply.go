package dtos

type EnableAutoReplyDTO struct {
	SessionID string `json:"sessionId" binding:"required"`
	EventID   string `json:"eventId" binding:"required"`
	AgentID   string `json:"agentId" binding:"required"`
}

type DisableAutoReplyDTO struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type AutoReplyStatusDTO struct {
	Active  bool   `json:"active"`
	EventID string `json:"eventId,omitempty"`
	AgentID string `json:"agentId,omitempty"`
}
