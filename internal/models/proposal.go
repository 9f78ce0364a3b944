// internal/models/proposal.go
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInconsistentStatus = errors.New("customer and processing status are inconsistent")

// IssuanceProposal is the staged approval payload an assessor or approver proposes.
type IssuanceProposal struct {
	StartDate  string `json:"start_date"`
	ExpiryDate string `json:"expiry_date"`
	Details    string `json:"details"`
	CCEmail    string `json:"cc_email"`
}

func (i IssuanceProposal) Dates() (start, expiry time.Time, err error) {
	if start, err = ParseIssuanceDate(i.StartDate); err != nil {
		return
	}
	if expiry, err = ParseIssuanceDate(i.ExpiryDate); err != nil {
		return
	}
	if expiry.Before(start) {
		err = fmt.Errorf("expiry date %s is before start date %s", i.ExpiryDate, i.StartDate)
	}
	return
}

type Proposal struct {
	BaseModel
	LodgementNumber   string       `json:"lodgement_number" gorm:"size:20;index"`
	LodgementSequence int          `json:"lodgement_sequence" gorm:"default:0"`
	LodgementDate     *time.Time   `json:"lodgement_date" gorm:"type:date"`
	ProposalType      ProposalType `json:"proposal_type" gorm:"type:varchar(30);default:'new_licence'"`

	Activity string `json:"activity" gorm:"size:255;index"`
	Region   string `json:"region" gorm:"size:255"`
	Title    string `json:"title" gorm:"size:255"`
	Tenure   string `json:"tenure" gorm:"size:255"`

	Data         JSONB `json:"data"`
	AssessorData JSONB `json:"assessor_data"`
	CommentData  JSONB `json:"comment_data"`
	Schema       JSONB `json:"schema"`

	CustomerStatus   CustomerStatus   `json:"customer_status" gorm:"type:varchar(40);default:'draft';index"`
	ProcessingStatus ProcessingStatus `json:"processing_status" gorm:"type:varchar(40);default:'draft';index"`

	ApplicantID        *uint `json:"applicant_id" gorm:"index"`
	SubmitterID        *uint `json:"submitter_id" gorm:"index"`
	ProxyApplicantID   *uint `json:"proxy_applicant_id"`
	AssignedOfficerID  *uint `json:"assigned_officer_id" gorm:"index"`
	AssignedApproverID *uint `json:"assigned_approver_id" gorm:"index"`

	ProposedIssuanceApproval datatypes.JSONType[IssuanceProposal] `json:"proposed_issuance_approval"`
	ProposedDeclineStatus    bool                                 `json:"proposed_decline_status" gorm:"default:false"`

	ApprovalID            *uint `json:"approval_id" gorm:"index"`
	PreviousApplicationID *uint `json:"previous_application_id"`

	// Relationships
	Applicant         *Organisation      `json:"applicant,omitempty" gorm:"foreignKey:ApplicantID"`
	Submitter         *User              `json:"submitter,omitempty" gorm:"foreignKey:SubmitterID"`
	AssignedOfficer   *User              `json:"assigned_officer,omitempty" gorm:"foreignKey:AssignedOfficerID"`
	AssignedApprover  *User              `json:"assigned_approver,omitempty" gorm:"foreignKey:AssignedApproverID"`
	Approval          *Approval          `json:"approval,omitempty" gorm:"foreignKey:ApprovalID"`
	Requirements      []Requirement      `json:"requirements,omitempty" gorm:"foreignKey:ProposalID"`
	Referrals         []Referral         `json:"referrals,omitempty" gorm:"foreignKey:ProposalID"`
	AmendmentRequests []AmendmentRequest `json:"amendment_requests,omitempty" gorm:"foreignKey:ProposalID"`
	DeclinedDetails   *DeclinedDetails   `json:"declined_details,omitempty" gorm:"foreignKey:ProposalID"`
}

// AfterCreate assigns the lodgement number from the primary key. It is only ever set once.
func (p *Proposal) AfterCreate(tx *gorm.DB) error {
	if p.LodgementNumber != "" {
		return nil
	}
	p.LodgementNumber = fmt.Sprintf("P%d", p.ID)
	return tx.Model(p).UpdateColumn("lodgement_number", p.LodgementNumber).Error
}

func (p *Proposal) BeforeSave(_ *gorm.DB) error {
	return p.CheckStatusCoupling()
}

// CheckStatusCoupling rejects customer/processing pairs that contradict each other.
func (p *Proposal) CheckStatusCoupling() error {
	switch p.ProcessingStatus {
	case ProcessingStatusApproved, ProcessingStatusDeclined, ProcessingStatusDiscarded:
		if string(p.CustomerStatus) != string(p.ProcessingStatus) {
			return fmt.Errorf("%w: processing %s, customer %s", ErrInconsistentStatus, p.ProcessingStatus, p.CustomerStatus)
		}
		return nil
	case ProcessingStatusTemp, ProcessingStatusDraft, "":
		if p.CustomerStatus != "" && !p.CustomerStatus.IsEditable() {
			return fmt.Errorf("%w: processing %s, customer %s", ErrInconsistentStatus, p.ProcessingStatus, p.CustomerStatus)
		}
		return nil
	}
	if p.CustomerStatus.IsEditable() {
		return fmt.Errorf("%w: processing %s, customer %s", ErrInconsistentStatus, p.ProcessingStatus, p.CustomerStatus)
	}
	return nil
}

func (p *Proposal) Reference() string {
	return fmt.Sprintf("%s-%d", p.LodgementNumber, p.LodgementSequence)
}

// RegionsList splits the comma-separated region field.
func (p *Proposal) RegionsList() []string {
	if strings.TrimSpace(p.Region) == "" {
		return nil
	}
	parts := strings.Split(p.Region, ",")
	regions := make([]string, 0, len(parts))
	for _, r := range parts {
		if r = strings.TrimSpace(r); r != "" {
			regions = append(regions, r)
		}
	}
	return regions
}

func (p *Proposal) IsAssigned() bool {
	return p.AssignedOfficerID != nil
}

func (p *Proposal) IsTemporary() bool {
	return p.CustomerStatus == CustomerStatusTemp && p.ProcessingStatus == ProcessingStatusTemp
}

func (p *Proposal) CanUserEdit() bool {
	return p.CustomerStatus.IsEditable()
}

func (p *Proposal) IsDiscardable() bool {
	return p.CustomerStatus == CustomerStatusDraft || p.ProcessingStatus == ProcessingStatusAwaitingApplicant
}

// CanOfficerProcess reports whether officers may act on the proposal at all.
func (p *Proposal) CanOfficerProcess() bool {
	switch p.ProcessingStatus {
	case ProcessingStatusTemp, ProcessingStatusDraft, ProcessingStatusApproved,
		ProcessingStatusDeclined, ProcessingStatusDiscarded:
		return false
	}
	return true
}

// MissingFields returns the labels of required fields that are still empty.
func (p *Proposal) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(p.Region) == "" {
		missing = append(missing, "Region/District")
	}
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "Title")
	}
	if strings.TrimSpace(p.Activity) == "" {
		missing = append(missing, "Activity")
	}
	return missing
}

type DeclinedDetails struct {
	BaseModel
	ProposalID uint                        `json:"proposal_id" gorm:"uniqueIndex;not null"`
	OfficerID  uint                        `json:"officer_id" gorm:"not null"`
	Reason     string                      `json:"reason" gorm:"type:text"`
	CCEmail    datatypes.JSONSlice[string] `json:"cc_email"`

	// Relationships
	Officer *User `json:"officer,omitempty" gorm:"foreignKey:OfficerID"`
}

type AmendmentRequest struct {
	BaseModel
	ProposalID uint            `json:"proposal_id" gorm:"not null;index"`
	OfficerID  uint            `json:"officer_id" gorm:"not null"`
	Subject    string          `json:"subject" gorm:"size:200"`
	Text       string          `json:"text" gorm:"type:text"`
	Reason     AmendmentReason `json:"reason" gorm:"type:varchar(30);default:'other'"`
	Status     AmendmentStatus `json:"status" gorm:"type:varchar(30);default:'requested';index"`
}
