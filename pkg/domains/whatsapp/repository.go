package whatsapp

import (
	"context"
	"errors"
	"time"

	"github.com/wasender/pkg/entities"
	"gorm.io/gorm"
)

// Repository mirrors session state to the database.
type Repository interface {
	SaveState(ctx context.Context, snap Snapshot) error
	DeleteState(ctx context.Context, sessionID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) SaveState(ctx context.Context, snap Snapshot) error {
	db := r.db.WithContext(ctx)

	var session entities.WhatsAppSession
	err := db.Where("session_id = ?", snap.SessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = entities.WhatsAppSession{
			SessionID:         snap.SessionID,
			State:             string(snap.State),
			IsConnected:       snap.Connected,
			ReconnectAttempts: snap.ReconnectAttempts,
			LastActiveAt:      time.Now(),
		}
		return db.Create(&session).Error
	}
	if err != nil {
		return err
	}

	session.State = string(snap.State)
	session.IsConnected = snap.Connected
	session.ReconnectAttempts = snap.ReconnectAttempts
	session.LastActiveAt = time.Now()
	return db.Save(&session).Error
}

func (r *repository) DeleteState(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entities.WhatsAppSession{}).Error
}
