// internal/models/group.go
package models

import (
	"gorm.io/datatypes"
)

// Group is an assessor or approver group scoped by region and activity tags.
type Group struct {
	BaseModel
	Name       string                      `json:"name" gorm:"size:255;not null"`
	Kind       GroupKind                   `json:"kind" gorm:"type:varchar(20);not null;index"`
	Regions    datatypes.JSONSlice[string] `json:"regions"`
	Activities datatypes.JSONSlice[string] `json:"activities"`
	IsDefault  bool                        `json:"is_default" gorm:"default:false"`

	// Relationships
	Members []User `json:"members,omitempty" gorm:"many2many:group_members"`
}

// GroupScope is one (activity, region) pair a group covers.
type GroupScope struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	GroupID  uint      `json:"group_id" gorm:"not null;index"`
	Kind     GroupKind `json:"kind" gorm:"type:varchar(20);not null;index:idx_group_scope_lookup"`
	Activity string    `json:"activity" gorm:"size:255;not null;index:idx_group_scope_lookup"`
	Region   string    `json:"region" gorm:"size:255;not null;index:idx_group_scope_lookup"`
}

func (Group) TableName() string {
	return "assessment_groups"
}
