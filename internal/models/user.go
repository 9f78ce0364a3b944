// internal/models/user.go
package models

import (
	"strings"

	"gorm.io/gorm"
)

type User struct {
	BaseModel
	Email     string `json:"email" gorm:"uniqueIndex;size:255;not null"`
	FirstName string `json:"first_name" gorm:"size:128"`
	LastName  string `json:"last_name" gorm:"size:128"`
	IsStaff   bool   `json:"is_staff" gorm:"default:false"`

	// Relationships
	Organisations []Organisation `json:"organisations,omitempty" gorm:"many2many:organisation_members"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// BeforeSave keeps emails lower-case so lookups can be case-insensitive.
func (u *User) BeforeSave(_ *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}

type Organisation struct {
	BaseModel
	Name          string `json:"name" gorm:"size:255;not null"`
	ABN           string `json:"abn" gorm:"size:50"`
	Email         string `json:"email" gorm:"size:255"`
	PostalAddress string `json:"postal_address" gorm:"type:text"`

	// Relationships
	Members []User `json:"members,omitempty" gorm:"many2many:organisation_members"`
}

func (o *Organisation) HasPostalAddress() bool {
	return strings.TrimSpace(o.PostalAddress) != ""
}
