// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSONB is a free-form JSON document. It maps to jsonb on PostgreSQL and json elsewhere.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}

	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (JSONB) GormDataType() string {
	return "json"
}

func (JSONB) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "JSON"
}

// IssuanceDateLayout is the dd/mm/yyyy layout used by staged issuance payloads.
const IssuanceDateLayout = "02/01/2006"

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseIssuanceDate parses a dd/mm/yyyy date.
func ParseIssuanceDate(s string) (time.Time, error) {
	t, err := time.Parse(IssuanceDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected dd/mm/yyyy", s)
	}
	return t, nil
}

// Enums
type ProcessingStatus string

const (
	ProcessingStatusTemp                     ProcessingStatus = "temp"
	ProcessingStatusDraft                    ProcessingStatus = "draft"
	ProcessingStatusWithAssessor             ProcessingStatus = "with_assessor"
	ProcessingStatusWithReferral             ProcessingStatus = "with_referral"
	ProcessingStatusWithAssessorRequirements ProcessingStatus = "with_assessor_requirements"
	ProcessingStatusWithApprover             ProcessingStatus = "with_approver"
	ProcessingStatusRenewal                  ProcessingStatus = "renewal"
	ProcessingStatusLicenceAmendment         ProcessingStatus = "licence_amendment"
	ProcessingStatusAwaitingApplicant        ProcessingStatus = "awaiting_applicant_response"
	ProcessingStatusAwaitingAssessor         ProcessingStatus = "awaiting_assessor_response"
	ProcessingStatusAwaitingResponses        ProcessingStatus = "awaiting_responses"
	ProcessingStatusReadyForConditions       ProcessingStatus = "ready_for_conditions"
	ProcessingStatusReadyToIssue             ProcessingStatus = "ready_to_issue"
	ProcessingStatusApproved                 ProcessingStatus = "approved"
	ProcessingStatusDeclined                 ProcessingStatus = "declined"
	ProcessingStatusDiscarded                ProcessingStatus = "discarded"
)

type CustomerStatus string

const (
	CustomerStatusTemp              CustomerStatus = "temp"
	CustomerStatusDraft             CustomerStatus = "draft"
	CustomerStatusWithAssessor      CustomerStatus = "with_assessor"
	CustomerStatusAmendmentRequired CustomerStatus = "amendment_required"
	CustomerStatusApproved          CustomerStatus = "approved"
	CustomerStatusDeclined          CustomerStatus = "declined"
	CustomerStatusDiscarded         CustomerStatus = "discarded"
)

// IsEditable reports whether the applicant may still change the proposal.
func (s CustomerStatus) IsEditable() bool {
	switch s {
	case CustomerStatusTemp, CustomerStatusDraft, CustomerStatusAmendmentRequired:
		return true
	}
	return false
}

type ProposalType string

const (
	ProposalTypeNew       ProposalType = "new_licence"
	ProposalTypeAmendment ProposalType = "amendment"
	ProposalTypeRenewal   ProposalType = "renewal"
)

type GroupKind string

const (
	GroupKindAssessor GroupKind = "assessor"
	GroupKindApprover GroupKind = "approver"
)

type ReferralStatus string

const (
	ReferralStatusWithReferral ReferralStatus = "with_referral"
	ReferralStatusRecalled     ReferralStatus = "recalled"
	ReferralStatusCompleted    ReferralStatus = "completed"
)

// SentFrom records which side of the referral protocol created a referral.
type SentFrom int

const (
	SentFromAssessor SentFrom = 1
	SentFromReferral SentFrom = 2
)

type RecurrencePattern int

const (
	RecurrenceWeekly  RecurrencePattern = 1
	RecurrenceMonthly RecurrencePattern = 2
	RecurrenceYearly  RecurrencePattern = 3
)

// StepDays is the fixed length in days of one recurrence unit. Months are four weeks and years ignore leap days.
func (p RecurrencePattern) StepDays() int {
	switch p {
	case RecurrenceWeekly:
		return 7
	case RecurrenceMonthly:
		return 28
	case RecurrenceYearly:
		return 365
	}
	return 0
}

func (p RecurrencePattern) String() string {
	switch p {
	case RecurrenceWeekly:
		return "weekly"
	case RecurrenceMonthly:
		return "monthly"
	case RecurrenceYearly:
		return "yearly"
	}
	return fmt.Sprintf("pattern(%d)", int(p))
}

type ComplianceStatus string

const (
	ComplianceStatusFuture       ComplianceStatus = "future"
	ComplianceStatusDue          ComplianceStatus = "due"
	ComplianceStatusWithAssessor ComplianceStatus = "with_assessor"
	ComplianceStatusApproved     ComplianceStatus = "approved"
)

type ApprovalStatus string

const (
	ApprovalStatusCurrent     ApprovalStatus = "current"
	ApprovalStatusSuperseded  ApprovalStatus = "superseded"
	ApprovalStatusSurrendered ApprovalStatus = "surrendered"
)

type AmendmentStatus string

const (
	AmendmentStatusRequested AmendmentStatus = "requested"
	AmendmentStatusAmended   AmendmentStatus = "amended"
)

type AmendmentReason string

const (
	AmendmentReasonInsufficientDetail AmendmentReason = "insufficient_detail"
	AmendmentReasonMissingInformation AmendmentReason = "missing_information"
	AmendmentReasonOther              AmendmentReason = "other"
)

type ResourceType string

const (
	ResourceTypeProposal     ResourceType = "proposal"
	ResourceTypeOrganisation ResourceType = "organisation"
	ResourceTypeApproval     ResourceType = "approval"
	ResourceTypeCompliance   ResourceType = "compliance"
	ResourceTypeGroup        ResourceType = "group"
)

type DeliveryStatus string

const (
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusSkipped DeliveryStatus = "skipped"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)
