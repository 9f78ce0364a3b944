// internal/models/approval.go
package models

import (
	"time"
)

type Approval struct {
	BaseModel
	CurrentProposalID *uint          `json:"current_proposal_id" gorm:"uniqueIndex"`
	Status            ApprovalStatus `json:"status" gorm:"type:varchar(20);default:'current';index"`
	Activity          string         `json:"activity" gorm:"size:255"`
	Region            string         `json:"region" gorm:"size:255"`
	Tenure            string         `json:"tenure" gorm:"size:255"`
	Title             string         `json:"title" gorm:"size:255"`
	ApplicantID       *uint          `json:"applicant_id" gorm:"index"`
	IssueDate         time.Time      `json:"issue_date"`
	StartDate         time.Time      `json:"start_date" gorm:"type:date"`
	ExpiryDate        time.Time      `json:"expiry_date" gorm:"type:date"`
	LicenceDocument   string         `json:"licence_document" gorm:"size:512"`
	ReplacedByID      *uint          `json:"replaced_by_id" gorm:"index"`

	// Relationships
	CurrentProposal *Proposal     `json:"current_proposal,omitempty" gorm:"foreignKey:CurrentProposalID"`
	Applicant       *Organisation `json:"applicant,omitempty" gorm:"foreignKey:ApplicantID"`
	ReplacedBy      *Approval     `json:"replaced_by,omitempty" gorm:"foreignKey:ReplacedByID"`
}

// CanReissue reports whether a current, unexpired approval may go back to an approver.
func (a *Approval) CanReissue(today time.Time) bool {
	return a.Status == ApprovalStatusCurrent && !a.ExpiryDate.Before(DateOnly(today))
}

type Compliance struct {
	BaseModel
	ProposalID       uint             `json:"proposal_id" gorm:"not null;index"`
	ApprovalID       uint             `json:"approval_id" gorm:"not null;index"`
	RequirementID    *uint            `json:"requirement_id" gorm:"index"`
	Requirement      string           `json:"requirement" gorm:"type:text"`
	DueDate          time.Time        `json:"due_date" gorm:"type:date;index"`
	ProcessingStatus ComplianceStatus `json:"processing_status" gorm:"type:varchar(20);default:'future';index"`
	CustomerStatus   ComplianceStatus `json:"customer_status" gorm:"type:varchar(20);default:'future'"`
	Text             string           `json:"text" gorm:"type:text"`
	LodgementDate    *time.Time       `json:"lodgement_date"`
	SubmitterID      *uint            `json:"submitter_id"`
}
