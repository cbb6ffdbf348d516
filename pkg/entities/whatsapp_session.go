package entities

import (
	"time"

	"gorm.io/gorm"
)

// WhatsAppSession mirrors the lifecycle state of a managed session.
type WhatsAppSession struct {
	gorm.Model
	SessionID         string    `json:"session_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	State             string    `json:"state" gorm:"type:varchar(32);not null"`
	IsConnected       bool      `json:"is_connected" gorm:"default:false"`
	ReconnectAttempts int       `json:"reconnect_attempts" gorm:"default:0"`
	LastActiveAt      time.Time `json:"last_active_at"`
}

// SendJob is the persisted progress of a bulk send campaign.
type SendJob struct {
	NumberID      string    `json:"number_id" gorm:"primaryKey;type:varchar(64)"`
	UserID        string    `json:"user_id" gorm:"type:varchar(128);index;not null"`
	SessionID     string    `json:"session_id" gorm:"type:varchar(64);not null"`
	LastSentIndex int       `json:"last_sent_index" gorm:"not null;default:-1"`
	SentCount     int       `json:"sent_count" gorm:"not null;default:0"`
	FailedCount   int       `json:"failed_count" gorm:"not null;default:0"`
	TotalCount    int       `json:"total_count" gorm:"not null;default:0"`
	IsSending     bool      `json:"is_sending" gorm:"default:false"`
	UpdatedAt     time.Time `json:"updated_at"`
}
