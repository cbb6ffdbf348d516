package entitlement

import (
	"context"

	"github.com/wasender/pkg/entities"
	"gorm.io/gorm"
)

type Repository interface {
	GetUserPlan(ctx context.Context, userID string) (string, error)
	GetPlan(ctx context.Context, planID string) (entities.Plan, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) GetUserPlan(ctx context.Context, userID string) (string, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("uid = ?", userID).First(&user).Error
	return user.PlanID, err
}

func (r *repository) GetPlan(ctx context.Context, planID string) (entities.Plan, error) {
	var plan entities.Plan
	err := r.db.WithContext(ctx).Where("id = ?", planID).First(&plan).Error
	return plan, err
}
