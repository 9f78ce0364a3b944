// internal/services/proposal_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wildlife-licensing/internal/config"
	"github.com/javajoker/wildlife-licensing/internal/database"
	"github.com/javajoker/wildlife-licensing/internal/metrics"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

const (
	msgCannotChangeStatus   = "You cannot change the current status at this time"
	msgNotAuthorisedProcess = "You are not authorised to process this proposal"
)

// ProposalService drives a proposal through assessment, referral, approval and decline.
// Each operation runs in one transaction together with its audit entries; emails go out after commit.
type ProposalService struct {
	db            *gorm.DB
	authorization *AuthorizationService
	audit         *AuditService
	notifier      Notifier
	documents     DocumentGenerator
	compliances   *ComplianceService
	metrics       *metrics.Metrics
	config        *config.Config
	now           func() time.Time
}

type CreateProposalRequest struct {
	ApplicantID  *uint               `json:"applicant_id"`
	ProposalType models.ProposalType `json:"proposal_type" validate:"omitempty,oneof=new_licence amendment renewal"`
	Activity     string              `json:"activity" validate:"max=255"`
	Region       string              `json:"region" validate:"max=255"`
	Title        string              `json:"title" validate:"max=255"`
	Tenure       string              `json:"tenure" validate:"max=255"`
	Data         models.JSONB        `json:"data"`
}

// ProposalDataRequest carries the proponent's form for saving a draft or submitting.
type ProposalDataRequest struct {
	Activity string       `json:"activity" validate:"max=255"`
	Region   string       `json:"region" validate:"max=255"`
	Title    string       `json:"title" validate:"max=255"`
	Tenure   string       `json:"tenure" validate:"max=255"`
	Data     models.JSONB `json:"data"`
}

type DeclineRequest struct {
	Reason  string   `json:"reason" validate:"required"`
	CCEmail []string `json:"cc_email" validate:"omitempty,dive,email"`
}

type IssuanceRequest struct {
	StartDate  string `json:"start_date" validate:"required,dmy_date"`
	ExpiryDate string `json:"expiry_date" validate:"required,dmy_date"`
	Details    string `json:"details"`
	CCEmail    string `json:"cc_email"`
}

type AmendmentRequestInput struct {
	Reason  models.AmendmentReason `json:"reason" validate:"required,oneof=insufficient_detail missing_information other"`
	Subject string                 `json:"subject" validate:"max=200"`
	Text    string                 `json:"text" validate:"required"`
}

type ProposalFilter struct {
	ProcessingStatus models.ProcessingStatus
	CustomerStatus   models.CustomerStatus
	Activity         string
	Region           string
	AssignedOfficer  *uint
	SubmitterID      *uint
}

func NewProposalService(
	db *gorm.DB,
	cfg *config.Config,
	authorization *AuthorizationService,
	audit *AuditService,
	notifier Notifier,
	documents DocumentGenerator,
	compliances *ComplianceService,
	m *metrics.Metrics,
) *ProposalService {
	return &ProposalService{
		db:            db,
		authorization: authorization,
		audit:         audit,
		notifier:      notifier,
		documents:     documents,
		compliances:   compliances,
		metrics:       m,
		config:        cfg,
		now:           time.Now,
	}
}

// SetClock overrides the current time source.
func (s *ProposalService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ProposalService) Create(ctx context.Context, actor *models.User, req *CreateProposalRequest) (*models.Proposal, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	proposal := &models.Proposal{
		ProposalType:     req.ProposalType,
		Activity:         strings.TrimSpace(req.Activity),
		Region:           strings.TrimSpace(req.Region),
		Title:            strings.TrimSpace(req.Title),
		Tenure:           strings.TrimSpace(req.Tenure),
		Data:             req.Data,
		CustomerStatus:   models.CustomerStatusDraft,
		ProcessingStatus: models.ProcessingStatusDraft,
		ApplicantID:      req.ApplicantID,
		SubmitterID:      &actor.ID,
	}
	if proposal.ProposalType == "" {
		proposal.ProposalType = models.ProposalTypeNew
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if req.ApplicantID != nil {
			var count int64
			if err := tx.Model(&models.Organisation{}).Where("id = ?", *req.ApplicantID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check applicant: %w", err)
			}
			if count == 0 {
				return validationError("The applicant organisation does not exist")
			}
		}
		if err := tx.Omit(clause.Associations).Create(proposal).Error; err != nil {
			return fmt.Errorf("failed to create proposal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"proposal_id": proposal.ID,
		"actor_id":    actor.ID,
	}).Info("Proposal created")
	return proposal, nil
}

func (s *ProposalService) Get(ctx context.Context, id uint) (*models.Proposal, error) {
	var proposal models.Proposal
	err := s.db.WithContext(ctx).
		Preload("Applicant").
		Preload("Submitter").
		Preload("AssignedOfficer").
		Preload("AssignedApprover").
		Preload("Approval").
		Preload("Requirements", func(db *gorm.DB) *gorm.DB { return db.Order("req_order, id") }).
		Preload("Requirements.StandardRequirement").
		Preload("Referrals").
		Preload("Referrals.Referral").
		Preload("AmendmentRequests").
		Preload("DeclinedDetails").
		First(&proposal, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: proposal %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &proposal, nil
}

func (s *ProposalService) List(ctx context.Context, filter ProposalFilter, params utils.PaginationParams) ([]models.Proposal, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Proposal{})
	if filter.ProcessingStatus != "" {
		query = query.Where("processing_status = ?", filter.ProcessingStatus)
	}
	if filter.CustomerStatus != "" {
		query = query.Where("customer_status = ?", filter.CustomerStatus)
	}
	if filter.Activity != "" {
		query = query.Where("activity = ?", filter.Activity)
	}
	if filter.Region != "" {
		query = query.Where("region LIKE ?", "%"+filter.Region+"%")
	}
	if filter.AssignedOfficer != nil {
		query = query.Where("assigned_officer_id = ? OR assigned_approver_id = ?", *filter.AssignedOfficer, *filter.AssignedOfficer)
	}
	if filter.SubmitterID != nil {
		query = query.Where("submitter_id = ?", *filter.SubmitterID)
	}
	if params.Search != "" {
		term := "%" + params.Search + "%"
		query = query.Where("title LIKE ? OR lodgement_number LIKE ?", term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count proposals: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "lodgement_date", "lodgement_number", "title", "processing_status"})
	var proposals []models.Proposal
	if err := utils.ApplyPagination(query, params).Find(&proposals).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list proposals: %w", err)
	}
	return proposals, total, nil
}

// SaveDraft stores the proponent's form without submitting it.
func (s *ProposalService) SaveDraft(ctx context.Context, actor *models.User, id uint, req *ProposalDataRequest) (*models.Proposal, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.transition(ctx, "save_draft", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if !p.CanUserEdit() {
			return nil, invalidStatus("You can't edit this proposal at this moment")
		}
		applyProposalData(p, req)
		return nil, saveProposal(tx, p)
	})
}

// Submit lodges the proposal with the assessors.
func (s *ProposalService) Submit(ctx context.Context, actor *models.User, id uint, req *ProposalDataRequest) (*models.Proposal, error) {
	if req != nil {
		if err := utils.ValidateStruct(req); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return s.transition(ctx, "submit", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if !p.CanUserEdit() {
			return nil, invalidStatus("You can't edit this proposal at this moment")
		}
		if req != nil {
			applyProposalData(p, req)
		}
		if missing := p.MissingFields(); len(missing) > 0 {
			return nil, &MissingFieldsError{Fields: missing}
		}

		today := models.DateOnly(s.now())
		p.ProcessingStatus = models.ProcessingStatusWithAssessor
		p.CustomerStatus = models.CustomerStatusWithAssessor
		p.SubmitterID = &actor.ID
		p.LodgementDate = &today
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}

		err := tx.Model(&models.AmendmentRequest{}).
			Where("proposal_id = ? AND status = ?", p.ID, models.AmendmentStatusRequested).
			Update("status", models.AmendmentStatusAmended).Error
		if err != nil {
			return nil, fmt.Errorf("failed to resolve amendment requests: %w", err)
		}

		if err := s.audit.RecordProposal(tx, p, fmt.Sprintf("Lodge proposal %d", p.ID), actor); err != nil {
			return nil, err
		}

		group, err := s.authorization.AssessorGroup(tx, p)
		if err != nil {
			return nil, err
		}
		to, err := s.groupEmails(tx, group)
		if err != nil {
			return nil, err
		}
		return []*Message{s.proposalMessage(TemplateProposalSubmitted, p, to, nil, nil)}, nil
	})
}

// AssignOfficer assigns target as the assessor, or as the approver while the proposal is with an approver.
func (s *ProposalService) AssignOfficer(ctx context.Context, actor *models.User, id, targetID uint) (*models.Proposal, error) {
	return s.transition(ctx, "assign_officer", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if err := s.requireCanAssess(tx, p, actor); err != nil {
			return nil, err
		}

		var target models.User
		if err := tx.First(&target, targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: user %d", ErrNotFound, targetID)
			}
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		ok, err := s.authorization.CanAssess(tx, p, &target)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, validationError("The selected person is not authorised to be assigned to this proposal")
		}

		var action string
		if p.ProcessingStatus == models.ProcessingStatusWithApprover {
			if p.AssignedApproverID != nil && *p.AssignedApproverID == target.ID {
				return nil, nil
			}
			p.AssignedApproverID = &target.ID
			action = fmt.Sprintf("Assign proposal %d to %s as the approver", p.ID, describeUser(&target))
		} else {
			if p.AssignedOfficerID != nil && *p.AssignedOfficerID == target.ID {
				return nil, nil
			}
			p.AssignedOfficerID = &target.ID
			action = fmt.Sprintf("Assign proposal %d to %s as the assessor", p.ID, describeUser(&target))
		}
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}
		return nil, s.audit.RecordProposal(tx, p, action, actor)
	})
}

// AssignRequestUser assigns the proposal to the acting officer.
func (s *ProposalService) AssignRequestUser(ctx context.Context, actor *models.User, id uint) (*models.Proposal, error) {
	return s.AssignOfficer(ctx, actor, id, actor.ID)
}

func (s *ProposalService) Unassign(ctx context.Context, actor *models.User, id uint) (*models.Proposal, error) {
	return s.transition(ctx, "unassign", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if err := s.requireCanAssess(tx, p, actor); err != nil {
			return nil, err
		}

		var action string
		if p.ProcessingStatus == models.ProcessingStatusWithApprover {
			if p.AssignedApproverID == nil {
				return nil, nil
			}
			p.AssignedApproverID = nil
			action = fmt.Sprintf("Unassign approver from proposal %d", p.ID)
		} else {
			if p.AssignedOfficerID == nil {
				return nil, nil
			}
			p.AssignedOfficerID = nil
			action = fmt.Sprintf("Unassign assessor from proposal %d", p.ID)
		}
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}
		return nil, s.audit.RecordProposal(tx, p, action, actor)
	})
}

func (s *ProposalService) MoveToStatus(ctx context.Context, actor *models.User, id uint, status models.ProcessingStatus) (*models.Proposal, error) {
	return s.transition(ctx, "move_to_status", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		return nil, s.moveToStatus(tx, p, actor, status)
	})
}

func (s *ProposalService) moveToStatus(tx *gorm.DB, p *models.Proposal, actor *models.User, status models.ProcessingStatus) error {
	if err := s.requireCanAssess(tx, p, actor); err != nil {
		return err
	}
	switch status {
	case models.ProcessingStatusWithAssessor, models.ProcessingStatusWithAssessorRequirements, models.ProcessingStatusWithApprover:
	default:
		return validationError("The provided status cannot be found.")
	}
	if p.ProcessingStatus == models.ProcessingStatusWithReferral || p.CanUserEdit() {
		return invalidStatus(msgCannotChangeStatus)
	}
	if p.ProcessingStatus == status {
		return nil
	}

	p.ProcessingStatus = status
	if err := saveProposal(tx, p); err != nil {
		return err
	}

	switch status {
	case models.ProcessingStatusWithAssessor:
		_, err := s.audit.Record(tx, models.ResourceTypeProposal, p.ID, fmt.Sprintf("Back to processing for proposal %d", p.ID), actor)
		return err
	case models.ProcessingStatusWithAssessorRequirements:
		_, err := s.audit.Record(tx, models.ResourceTypeProposal, p.ID, fmt.Sprintf("Enter Requirements for proposal %d", p.ID), actor)
		return err
	}
	return nil
}

// ProposedDecline records the assessor's recommendation to decline and hands the proposal to an approver.
func (s *ProposalService) ProposedDecline(ctx context.Context, actor *models.User, id uint, req *DeclineRequest) (*models.Proposal, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.transition(ctx, "proposed_decline", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if err := s.requireCanAssess(tx, p, actor); err != nil {
			return nil, err
		}
		if p.ProcessingStatus != models.ProcessingStatusWithAssessor {
			return nil, invalidStatus("You cannot propose to decline if it is not with assessor")
		}

		if _, err := s.upsertDeclinedDetails(tx, p, actor, req); err != nil {
			return nil, err
		}
		p.ProposedDeclineStatus = true
		if err := s.moveToStatus(tx, p, actor, models.ProcessingStatusWithApprover); err != nil {
			return nil, err
		}
		if err := s.audit.RecordProposal(tx, p, fmt.Sprintf("Proposal %d has been proposed for decline", p.ID), actor); err != nil {
			return nil, err
		}

		return s.approverReview(tx, p, "proposed to decline")
	})
}

func (s *ProposalService) FinalDecline(ctx context.Context, actor *models.User, id uint, req *DeclineRequest) (*models.Proposal, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.transition(ctx, "final_decline", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if err := s.requireCanAssess(tx, p, actor); err != nil {
			return nil, err
		}
		if p.ProcessingStatus != models.ProcessingStatusWithApprover {
			return nil, invalidStatus("You cannot decline if it is not with approver")
		}

		details, err := s.upsertDeclinedDetails(tx, p, actor, req)
		if err != nil {
			return nil, err
		}
		p.ProposedDeclineStatus = true
		p.ProcessingStatus = models.ProcessingStatusDeclined
		p.CustomerStatus = models.CustomerStatusDeclined
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}
		if err := s.audit.RecordProposal(tx, p, fmt.Sprintf("Decline proposal %d", p.ID), actor); err != nil {
			return nil, err
		}

		to, err := s.submitterEmails(tx, p)
		if err != nil {
			return nil, err
		}
		msg := s.proposalMessage(TemplateProposalDeclined, p, to, details.CCEmail, map[string]interface{}{
			"Reason": details.Reason,
		})
		return []*Message{msg}, nil
	})
}

// ProposedApproval stages the issuance details and hands the proposal to an approver.
func (s *ProposalService) ProposedApproval(ctx context.Context, actor *models.User, id uint, req *IssuanceRequest) (*models.Proposal, error) {
	issuance, _, _, err := parseIssuance(req)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "proposed_approval", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if err := s.requireCanAssess(tx, p, actor); err != nil {
			return nil, err
		}
		if p.ProcessingStatus != models.ProcessingStatusWithAssessorRequirements {
			return nil, invalidStatus("You cannot propose for approval if it is not with assessor for requirements")
		}

		p.ProposedIssuanceApproval = datatypes.NewJSONType(issuance)
		p.ProposedDeclineStatus = false
		if err := s.moveToStatus(tx, p, actor, models.ProcessingStatusWithApprover); err != nil {
			return nil, err
		}
		if err := s.audit.RecordProposal(tx, p, fmt.Sprintf("Proposal %d has been proposed for approval", p.ID), actor); err != nil {
			return nil, err
		}

		return s.approverReview(tx, p, "proposed to approve")
	})
}

// FinalApproval issues the licence. A proposal approved before keeps its approval row; the
// previous version is kept as a superseded snapshot pointing at it.
func (s *ProposalService) FinalApproval(ctx context.Context, actor *models.User, id uint, req *IssuanceRequest) (*models.Proposal, error) {
	issuance, start, expiry, err := parseIssuance(req)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "final_approval", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if err := s.requireCanAssess(tx, p, actor); err != nil {
			return nil, err
		}
		if p.ProcessingStatus != models.ProcessingStatusWithApprover {
			return nil, invalidStatus("You cannot issue the approval if it is not with an approver")
		}
		if p.Applicant == nil || !p.Applicant.HasPostalAddress() {
			return nil, validationError("The applicant needs to have set their postal address before approving this proposal.")
		}

		p.ProposedIssuanceApproval = datatypes.NewJSONType(issuance)
		p.ProposedDeclineStatus = false
		p.ProcessingStatus = models.ProcessingStatusApproved
		p.CustomerStatus = models.CustomerStatusApproved
		if err := s.audit.RecordProposal(tx, p, fmt.Sprintf("Issue Approval for proposal %d", p.ID), actor); err != nil {
			return nil, err
		}

		approval, created, err := s.upsertApproval(tx, p, start, expiry)
		if err != nil {
			return nil, err
		}

		var requirements []models.Requirement
		err = tx.Preload("StandardRequirement").Where("proposal_id = ?", p.ID).Order("req_order, id").Find(&requirements).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load requirements: %w", err)
		}

		var attachments []Attachment
		if s.documents != nil {
			key, pdf, err := s.documents.GenerateLicence(tx.Statement.Context, approval, p, requirements)
			if err != nil {
				return nil, fmt.Errorf("failed to generate licence document: %w", err)
			}
			approval.LicenceDocument = key
			if err := tx.Model(approval).UpdateColumn("licence_document", key).Error; err != nil {
				return nil, fmt.Errorf("failed to store licence document: %w", err)
			}
			attachments = append(attachments, Attachment{
				Filename: fmt.Sprintf("licence-%s.pdf", p.LodgementNumber),
				Data:     pdf,
			})
		}

		if _, err := s.compliances.GenerateCompliances(tx, p, approval, s.now()); err != nil {
			return nil, err
		}

		if !created {
			if err := s.audit.RecordProposal(tx, p, fmt.Sprintf("Update Approval for proposal %d", p.ID), actor); err != nil {
				return nil, err
			}
		}

		p.ApprovalID = &approval.ID
		p.Approval = approval
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}

		to, err := s.submitterEmails(tx, p)
		if err != nil {
			return nil, err
		}
		msg := s.proposalMessage(TemplateProposalApproved, p, to, splitEmails(issuance.CCEmail), map[string]interface{}{
			"StartDate":  issuance.StartDate,
			"ExpiryDate": issuance.ExpiryDate,
			"Details":    issuance.Details,
		})
		msg.Attachments = attachments
		return []*Message{msg}, nil
	})
}

// upsertApproval finds the approval keyed by the proposal, snapshotting the existing version before it is overwritten.
func (s *ProposalService) upsertApproval(tx *gorm.DB, p *models.Proposal, start, expiry time.Time) (*models.Approval, bool, error) {
	approval := &models.Approval{}
	err := tx.Where("current_proposal_id = ?", p.ID).First(approval).Error
	created := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !created {
		return nil, false, fmt.Errorf("failed to load approval: %w", err)
	}

	if !created {
		snapshot := *approval
		snapshot.BaseModel = models.BaseModel{}
		snapshot.CurrentProposalID = nil
		snapshot.Status = models.ApprovalStatusSuperseded
		snapshot.ReplacedByID = &approval.ID
		if err := tx.Omit(clause.Associations).Create(&snapshot).Error; err != nil {
			return nil, false, fmt.Errorf("failed to snapshot approval: %w", err)
		}
	}

	approval.CurrentProposalID = &p.ID
	approval.Status = models.ApprovalStatusCurrent
	approval.Activity = p.Activity
	approval.Region = p.Region
	approval.Tenure = p.Tenure
	approval.Title = p.Title
	approval.ApplicantID = p.ApplicantID
	approval.IssueDate = s.now().UTC()
	approval.StartDate = start
	approval.ExpiryDate = expiry
	if err := tx.Omit(clause.Associations).Save(approval).Error; err != nil {
		return nil, false, fmt.Errorf("failed to save approval: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"proposal_id": p.ID,
		"approval_id": approval.ID,
		"created":     created,
	}).Info("Approval saved")
	return approval, created, nil
}

// ReissueApproval sends an approved proposal back to an approver so the licence can be reissued.
func (s *ProposalService) ReissueApproval(ctx context.Context, actor *models.User, id uint) (*models.Proposal, error) {
	return s.transition(ctx, "reissue_approval", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if p.ProcessingStatus != models.ProcessingStatusApproved {
			return nil, invalidStatus(msgCannotChangeStatus)
		}
		if p.ApprovalID == nil {
			return nil, invalidStatus("Cannot reissue Approval")
		}
		var approval models.Approval
		if err := tx.First(&approval, *p.ApprovalID).Error; err != nil {
			return nil, fmt.Errorf("failed to load approval: %w", err)
		}
		if !approval.CanReissue(s.now()) {
			return nil, invalidStatus("Cannot reissue Approval")
		}

		ok, err := s.authorization.IsApprover(tx, p, actor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notAuthorized("Only an approver can reissue this approval")
		}

		p.ProcessingStatus = models.ProcessingStatusWithApprover
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}
		_, err = s.audit.Record(tx, models.ResourceTypeProposal, p.ID, fmt.Sprintf("Reissue approval for proposal %d", p.ID), actor)
		return nil, err
	})
}

// RequestAmendment returns the proposal to the proponent for changes.
func (s *ProposalService) RequestAmendment(ctx context.Context, actor *models.User, id uint, req *AmendmentRequestInput) (*models.Proposal, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.transition(ctx, "request_amendment", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if err := s.requireCanAssess(tx, p, actor); err != nil {
			return nil, err
		}

		amendment := &models.AmendmentRequest{
			ProposalID: p.ID,
			OfficerID:  actor.ID,
			Subject:    req.Subject,
			Text:       req.Text,
			Reason:     req.Reason,
			Status:     models.AmendmentStatusRequested,
		}
		if err := tx.Create(amendment).Error; err != nil {
			return nil, fmt.Errorf("failed to create amendment request: %w", err)
		}

		p.ProcessingStatus = models.ProcessingStatusDraft
		p.CustomerStatus = models.CustomerStatusAmendmentRequired
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}
		if err := s.audit.RecordProposal(tx, p, "Request amendments", actor); err != nil {
			return nil, err
		}

		to, err := s.submitterEmails(tx, p)
		if err != nil {
			return nil, err
		}
		msg := s.proposalMessage(TemplateAmendmentRequest, p, to, nil, map[string]interface{}{
			"Reason": string(req.Reason),
			"Text":   req.Text,
		})
		return []*Message{msg}, nil
	})
}

func (s *ProposalService) Discard(ctx context.Context, actor *models.User, id uint) (*models.Proposal, error) {
	return s.transition(ctx, "discard", id, actor, func(tx *gorm.DB, p *models.Proposal) ([]*Message, error) {
		if !p.IsDiscardable() {
			return nil, invalidStatus("You cannot discard this proposal at this time")
		}
		p.ProcessingStatus = models.ProcessingStatusDiscarded
		p.CustomerStatus = models.CustomerStatusDiscarded
		if err := saveProposal(tx, p); err != nil {
			return nil, err
		}
		return nil, s.audit.RecordProposal(tx, p, fmt.Sprintf("Discard proposal %d", p.ID), actor)
	})
}

func (s *ProposalService) AllowedAssessors(ctx context.Context, id uint) ([]models.User, error) {
	var p models.Proposal
	tx := s.db.WithContext(ctx)
	if err := loadProposal(tx, id, &p); err != nil {
		return nil, err
	}
	return s.authorization.AllowedAssessors(tx, &p)
}

func (s *ProposalService) HasAssessorMode(ctx context.Context, actor *models.User, id uint) (bool, error) {
	var p models.Proposal
	tx := s.db.WithContext(ctx)
	if err := loadProposal(tx, id, &p); err != nil {
		return false, err
	}
	return s.authorization.HasAssessorMode(tx, &p, actor)
}

// transition loads the proposal and runs fn as one workflow operation.
func (s *ProposalService) transition(ctx context.Context, name string, id uint, actor *models.User, fn func(tx *gorm.DB, p *models.Proposal) ([]*Message, error)) (*models.Proposal, error) {
	op := operation{
		db:       s.db,
		metrics:  s.metrics,
		notifier: s.notifier,
		name:     name,
		fields:   logrus.Fields{"proposal_id": id},
	}
	if actor != nil {
		op.fields["actor_id"] = actor.ID
	}

	var proposal models.Proposal
	err := op.run(ctx, func(tx *gorm.DB) ([]*Message, error) {
		if err := loadProposal(tx.Preload("Applicant"), id, &proposal); err != nil {
			return nil, err
		}
		return fn(tx, &proposal)
	})
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (s *ProposalService) requireCanAssess(tx *gorm.DB, p *models.Proposal, actor *models.User) error {
	ok, err := s.authorization.CanAssess(tx, p, actor)
	if err != nil {
		return err
	}
	if !ok {
		return notAuthorized(msgNotAuthorisedProcess)
	}
	return nil
}

func (s *ProposalService) upsertDeclinedDetails(tx *gorm.DB, p *models.Proposal, actor *models.User, req *DeclineRequest) (*models.DeclinedDetails, error) {
	details := &models.DeclinedDetails{}
	err := tx.Where("proposal_id = ?", p.ID).First(details).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load declined details: %w", err)
	}

	details.ProposalID = p.ID
	details.OfficerID = actor.ID
	details.Reason = req.Reason
	details.CCEmail = req.CCEmail
	if err := tx.Omit(clause.Associations).Save(details).Error; err != nil {
		return nil, fmt.Errorf("failed to save declined details: %w", err)
	}
	return details, nil
}

// approverReview notifies the approver group that a recommendation is waiting.
func (s *ProposalService) approverReview(tx *gorm.DB, p *models.Proposal, recommendation string) ([]*Message, error) {
	group, err := s.authorization.ApproverGroup(tx, p)
	if err != nil {
		return nil, err
	}
	to, err := s.groupEmails(tx, group)
	if err != nil {
		return nil, err
	}
	return []*Message{s.proposalMessage(TemplateApproverReview, p, to, nil, map[string]interface{}{
		"Recommendation": recommendation,
	})}, nil
}

func (s *ProposalService) groupEmails(tx *gorm.DB, group *models.Group) ([]string, error) {
	var members []models.User
	if err := tx.Model(group).Association("Members").Find(&members); err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	emails := make([]string, 0, len(members))
	for _, m := range members {
		emails = append(emails, m.Email)
	}
	if len(emails) == 0 && s.config != nil && s.config.Email.NotifyAddress != "" {
		emails = append(emails, s.config.Email.NotifyAddress)
	}
	return emails, nil
}

func (s *ProposalService) submitterEmails(tx *gorm.DB, p *models.Proposal) ([]string, error) {
	if p.SubmitterID == nil {
		return nil, nil
	}
	var submitter models.User
	if err := tx.First(&submitter, *p.SubmitterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load submitter: %w", err)
	}
	return []string{submitter.Email}, nil
}

func (s *ProposalService) proposalMessage(template string, p *models.Proposal, to, cc []string, extra map[string]interface{}) *Message {
	data := map[string]interface{}{
		"Reference":  p.Reference(),
		"Title":      p.Title,
		"ProposalID": p.ID,
	}
	for k, v := range extra {
		data[k] = v
	}
	return &Message{
		Template:     template,
		To:           to,
		CC:           cc,
		Data:         data,
		ResourceType: models.ResourceTypeProposal,
		ResourceID:   p.ID,
	}
}

func loadProposal(tx *gorm.DB, id uint, p *models.Proposal) error {
	if err := tx.First(p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: proposal %d", ErrNotFound, id)
		}
		return fmt.Errorf("failed to load proposal: %w", err)
	}
	return nil
}

// saveProposal writes the proposal's own columns. The status coupling hook runs on every save.
func saveProposal(tx *gorm.DB, p *models.Proposal) error {
	if err := tx.Omit(clause.Associations).Save(p).Error; err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}
	return nil
}

func applyProposalData(p *models.Proposal, req *ProposalDataRequest) {
	p.Activity = strings.TrimSpace(req.Activity)
	p.Region = strings.TrimSpace(req.Region)
	p.Title = strings.TrimSpace(req.Title)
	p.Tenure = strings.TrimSpace(req.Tenure)
	if req.Data != nil {
		p.Data = req.Data
	}
}

func parseIssuance(req *IssuanceRequest) (models.IssuanceProposal, time.Time, time.Time, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return models.IssuanceProposal{}, time.Time{}, time.Time{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	issuance := models.IssuanceProposal{
		StartDate:  strings.TrimSpace(req.StartDate),
		ExpiryDate: strings.TrimSpace(req.ExpiryDate),
		Details:    req.Details,
		CCEmail:    req.CCEmail,
	}
	start, expiry, err := issuance.Dates()
	if err != nil {
		return models.IssuanceProposal{}, time.Time{}, time.Time{}, validationError("%v", err)
	}
	return issuance, start, expiry, nil
}

func splitEmails(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func describeUser(u *models.User) string {
	return fmt.Sprintf("%s(%s)", u.FullName(), u.Email)
}
