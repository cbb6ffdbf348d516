// Package catalog reads the topics and agent personas auto replies are
// built from.
package catalog

import (
	"context"

	"github.com/wasender/pkg/entities"
	"gorm.io/gorm"
)

type Repository interface {
	GetTopic(ctx context.Context, id string) (entities.Topic, error)
	GetAgent(ctx context.Context, id string) (entities.VirtualAgent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) GetTopic(ctx context.Context, id string) (entities.Topic, error) {
	var topic entities.Topic
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&topic).Error
	return topic, err
}

func (r *repository) GetAgent(ctx context.Context, id string) (entities.VirtualAgent, error) {
	var agent entities.VirtualAgent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error
	return agent, err
}
