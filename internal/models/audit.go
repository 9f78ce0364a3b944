// internal/models/audit.go
package models

import (
	"gorm.io/datatypes"
)

// AuditLog is the append-only action trail. Rows are never updated.
type AuditLog struct {
	BaseModel
	UserID       *uint        `json:"user_id" gorm:"index"`
	Action       string       `json:"action" gorm:"type:text;not null"`
	ResourceType ResourceType `json:"resource_type" gorm:"size:50;not null;index:idx_audit_resource"`
	ResourceID   uint         `json:"resource_id" gorm:"not null;index:idx_audit_resource"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// EmailLog records every notification attempt, delivered or not.
type EmailLog struct {
	BaseModel
	Template     string                      `json:"template" gorm:"size:100;not null;index"`
	Subject      string                      `json:"subject" gorm:"size:255"`
	Recipients   datatypes.JSONSlice[string] `json:"recipients"`
	CC           datatypes.JSONSlice[string] `json:"cc"`
	ResourceType ResourceType                `json:"resource_type" gorm:"size:50;index"`
	ResourceID   uint                        `json:"resource_id" gorm:"index"`
	Status       DeliveryStatus              `json:"status" gorm:"type:varchar(20);not null;index"`
	Error        string                      `json:"error,omitempty" gorm:"type:text"`
}
