package sender

import (
	"context"

	"github.com/wasender/pkg/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists job progress so a restarted process can resume.
type Repository interface {
	Load(ctx context.Context, numberID string) (entities.SendJob, error)
	Save(ctx context.Context, job entities.SendJob) error
	Delete(ctx context.Context, numberID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) Load(ctx context.Context, numberID string) (entities.SendJob, error) {
	var job entities.SendJob
	err := r.db.WithContext(ctx).Where("number_id = ?", numberID).First(&job).Error
	return job, err
}

func (r *repository) Save(ctx context.Context, job entities.SendJob) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&job).Error
}

func (r *repository) Delete(ctx context.Context, numberID string) error {
	return r.db.WithContext(ctx).Where("number_id = ?", numberID).Delete(&entities.SendJob{}).Error
}
