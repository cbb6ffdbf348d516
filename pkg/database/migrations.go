package database

import (
	"github.com/wasender/pkg/entities"
	"gorm.io/gorm"
)

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.Plan{},
		&entities.User{},
		&entities.WhatsAppSession{},
		&entities.SendJob{},
		&entities.Topic{},
		&entities.VirtualAgent{},
	)
}
