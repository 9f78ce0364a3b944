// internal/models/requirement.go
package models

import (
	"time"
)

type StandardRequirement struct {
	BaseModel
	Code     string `json:"code" gorm:"size:10;uniqueIndex;not null"`
	Text     string `json:"text" gorm:"type:text;not null"`
	Obsolete bool   `json:"obsolete" gorm:"default:false"`
}

type Requirement struct {
	BaseModel
	ProposalID            uint              `json:"proposal_id" gorm:"not null;index"`
	Order                 int               `json:"order" gorm:"column:req_order;not null;default:0"`
	Standard              bool              `json:"standard" gorm:"default:false"`
	StandardRequirementID *uint             `json:"standard_requirement_id"`
	FreeRequirement       string            `json:"free_requirement" gorm:"type:text"`
	DueDate               *time.Time        `json:"due_date" gorm:"type:date"`
	Recurrence            bool              `json:"recurrence" gorm:"default:false"`
	RecurrencePattern     RecurrencePattern `json:"recurrence_pattern" gorm:"type:smallint;default:1"`
	RecurrenceSchedule    *int              `json:"recurrence_schedule"`

	// Relationships
	StandardRequirement *StandardRequirement `json:"standard_requirement,omitempty" gorm:"foreignKey:StandardRequirementID"`
}

// Text resolves the condition wording from the standard catalogue or the free text.
func (r *Requirement) Text() string {
	if r.Standard && r.StandardRequirement != nil {
		return r.StandardRequirement.Text
	}
	return r.FreeRequirement
}

// Schedule is the number of pattern units between occurrences. Missing or non-positive values count as one.
func (r *Requirement) Schedule() int {
	if r.RecurrenceSchedule == nil || *r.RecurrenceSchedule <= 0 {
		return 1
	}
	return *r.RecurrenceSchedule
}
