package entities

import (
	"gorm.io/gorm"
)

// Topic is an event an auto-reply agent answers questions about.
type Topic struct {
	ID           string            `json:"id" gorm:"primaryKey;type:varchar(64)"`
	UserID       string            `json:"user_id" gorm:"type:varchar(128);index"`
	EventName    string            `json:"event_name" gorm:"type:varchar(255)"`
	EventDate    string            `json:"event_date" gorm:"type:varchar(64)"`
	EventInfo    string            `json:"event_info" gorm:"type:text"`
	EventLink    string            `json:"event_link" gorm:"type:varchar(512)"`
	CustomFields map[string]string `json:"custom_fields" gorm:"serializer:json;type:text"`
	DeletedAt    gorm.DeletedAt    `json:"-" gorm:"index"`
}

func (Topic) TableName() string {
	return "events"
}

// VirtualAgent is the persona profile used when replying.
type VirtualAgent struct {
	ID                 string            `json:"id" gorm:"primaryKey;type:varchar(64)"`
	UserID             string            `json:"user_id" gorm:"type:varchar(128);index"`
	Name               string            `json:"name" gorm:"type:varchar(255)"`
	CommunicationStyle string            `json:"communication_style" gorm:"type:varchar(255)"`
	KnowledgeArea      string            `json:"knowledge_area" gorm:"type:varchar(255)"`
	CustomFields       map[string]string `json:"custom_fields" gorm:"serializer:json;type:text"`
	DeletedAt          gorm.DeletedAt    `json:"-" gorm:"index"`
}
