package dtos

type SendMessageDTO struct {
	SessionID     string `json:"sessionId" binding:"required"`
	PhoneNumber   string `json:"phoneNumber" binding:"required,isphone"`
	Message       string `json:"message" binding:"required"`
	RecipientName string `json:"recipientName"`
}

type SendMessageResponseDTO struct {
	Success     bool   `json:"success"`
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// SessionStatusDTO keeps the CONNECTED / NEED_SCAN / DISCONNECTED summary
// clients poll for, next to the full lifecycle state.
type SessionStatusDTO struct {
	SessionID         string `json:"sessionId"`
	Connected         bool   `json:"connected"`
	HasQR             bool   `json:"hasQR"`
	Status            string `json:"status"`
	State             string `json:"state"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}

type QRCodeDTO struct {
	QR string `json:"qr"`
}

type SuccessDTO struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ErrorDTO struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
