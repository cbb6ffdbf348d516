package dtos

type RecipientDTO struct {
	Name  string `json:"name"`
	Phone string `json:"phone" binding:"required,isphone"`
}

type StartSendingDTO struct {
	NumberID        string         `json:"numberId" binding:"required"`
	SessionID       string         `json:"sessionId" binding:"required"`
	Recipients      []RecipientDTO `json:"recipients" binding:"required,min=1,dive"`
	Message         string         `json:"message" binding:"required"`
	DelaySeconds    float64        `json:"delaySeconds" binding:"min=0"`
	ForceStartIndex *int           `json:"forceStartIndex" binding:"omitempty,min=0"`
}

type StartSendingResponseDTO struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}
