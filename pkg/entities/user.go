package entities

import (
	"gorm.io/gorm"
)

// User is a tenant. UID is the external subject carried in access tokens.
type User struct {
	gorm.Model
	UID    string `json:"uid" gorm:"type:varchar(128);uniqueIndex;not null"`
	Email  string `json:"email" gorm:"type:varchar(255)"`
	Name   string `json:"name" gorm:"type:varchar(255)"`
	PlanID string `json:"plan_id" gorm:"type:varchar(64)"`
}

// Plan carries the entitlements of a subscription tier.
type Plan struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name        string `json:"name" gorm:"type:varchar(255)"`
	NumberLimit int    `json:"number_limit" gorm:"not null;default:1"`
}
