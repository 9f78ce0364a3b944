// internal/services/compliance_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/database"
	"github.com/javajoker/wildlife-licensing/internal/metrics"
	"github.com/javajoker/wildlife-licensing/internal/models"
)

// ComplianceService derives future obligations from an approval's requirements and
// moves them through lodgement and acceptance.
type ComplianceService struct {
	db            *gorm.DB
	authorization *AuthorizationService
	audit         *AuditService
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewComplianceService(db *gorm.DB, authorization *AuthorizationService, audit *AuditService, m *metrics.Metrics) *ComplianceService {
	return &ComplianceService{
		db:            db,
		authorization: authorization,
		audit:         audit,
		metrics:       m,
		now:           time.Now,
	}
}

// SetClock overrides the current time source.
func (s *ComplianceService) SetClock(now func() time.Time) {
	s.now = now
}

// GenerateSchedule returns the future compliances implied by the recurring requirements.
// Only requirements due after today are expanded. The due date itself is not emitted;
// each occurrence is schedule pattern units after the previous one and never after expiry.
func GenerateSchedule(today, expiry time.Time, requirements []models.Requirement) []models.Compliance {
	today = models.DateOnly(today)
	expiry = models.DateOnly(expiry)

	var out []models.Compliance
	for i := range requirements {
		req := &requirements[i]
		if !req.Recurrence || req.DueDate == nil {
			continue
		}
		cursor := models.DateOnly(*req.DueDate)
		if !cursor.After(today) {
			continue
		}

		step := req.RecurrencePattern.StepDays()
		if step <= 0 {
			logrus.WithFields(logrus.Fields{
				"requirement_id": req.ID,
				"pattern":        int(req.RecurrencePattern),
			}).Warn("Skipping requirement with unknown recurrence pattern")
			continue
		}
		interval := step * req.Schedule()

		for cursor.Before(expiry) {
			// Checked in days before moving so very large schedules cannot overflow the cursor.
			if float64(interval) > expiry.Sub(cursor).Hours()/24 {
				break
			}
			cursor = cursor.AddDate(0, 0, interval)
			reqID := req.ID
			out = append(out, models.Compliance{
				ProposalID:       req.ProposalID,
				RequirementID:    &reqID,
				Requirement:      req.Text(),
				DueDate:          cursor,
				ProcessingStatus: models.ComplianceStatusFuture,
				CustomerStatus:   models.ComplianceStatusFuture,
			})
		}
	}
	return out
}

// GenerateCompliances replaces the approval's future compliances with a fresh schedule.
func (s *ComplianceService) GenerateCompliances(tx *gorm.DB, p *models.Proposal, approval *models.Approval, today time.Time) ([]models.Compliance, error) {
	err := tx.Where("approval_id = ? AND processing_status = ?", approval.ID, models.ComplianceStatusFuture).
		Delete(&models.Compliance{}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to clear future compliances: %w", err)
	}

	var requirements []models.Requirement
	err = tx.Preload("StandardRequirement").
		Where("proposal_id = ?", p.ID).
		Order("req_order, id").
		Find(&requirements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load requirements: %w", err)
	}

	compliances := GenerateSchedule(today, approval.ExpiryDate, requirements)
	for i := range compliances {
		compliances[i].ApprovalID = approval.ID
	}
	if len(compliances) > 0 {
		if err := tx.Create(&compliances).Error; err != nil {
			return nil, fmt.Errorf("failed to create compliances: %w", err)
		}
	}

	s.metrics.AddCompliancesGenerated(len(compliances))
	logrus.WithFields(logrus.Fields{
		"proposal_id": p.ID,
		"approval_id": approval.ID,
		"count":       len(compliances),
	}).Info("Compliances generated")
	return compliances, nil
}

func (s *ComplianceService) ListByApproval(ctx context.Context, approvalID uint) ([]models.Compliance, error) {
	var compliances []models.Compliance
	err := s.db.WithContext(ctx).
		Where("approval_id = ?", approvalID).
		Order("due_date, id").
		Find(&compliances).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list compliances: %w", err)
	}
	return compliances, nil
}

// ListForProponent lists an approval's compliances for a user outside the department. Approvals the
// actor does not hold are reported as not found.
func (s *ComplianceService) ListForProponent(ctx context.Context, actor *models.User, approvalID uint) ([]models.Compliance, error) {
	db := s.db.WithContext(ctx)

	var approval models.Approval
	if err := db.First(&approval, approvalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: approval %d", ErrNotFound, approvalID)
		}
		return nil, fmt.Errorf("failed to load approval: %w", err)
	}
	if approval.CurrentProposalID == nil {
		return nil, fmt.Errorf("%w: approval %d", ErrNotFound, approvalID)
	}

	var proposal models.Proposal
	if err := db.First(&proposal, *approval.CurrentProposalID).Error; err != nil {
		return nil, fmt.Errorf("failed to load proposal %d: %w", *approval.CurrentProposalID, err)
	}
	allowed, err := s.isProponent(db, &proposal, actor)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: approval %d", ErrNotFound, approvalID)
	}
	return s.ListByApproval(ctx, approvalID)
}

// Submit lodges the proponent's response to a future or due compliance.
func (s *ComplianceService) Submit(ctx context.Context, actor *models.User, id uint, text string) (*models.Compliance, error) {
	if strings.TrimSpace(text) == "" {
		return nil, validationError("A compliance response is required")
	}

	var compliance models.Compliance
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		proposal, err := s.load(tx, id, &compliance)
		if err != nil {
			return err
		}

		allowed, err := s.isProponent(tx, proposal, actor)
		if err != nil {
			return err
		}
		if !allowed {
			return notAuthorized("Only the proponent can lodge this compliance")
		}
		switch compliance.ProcessingStatus {
		case models.ComplianceStatusFuture, models.ComplianceStatusDue:
		default:
			return invalidStatus("The compliance cannot be lodged in its current status")
		}

		now := s.now()
		compliance.Text = text
		compliance.LodgementDate = &now
		compliance.SubmitterID = &actor.ID
		compliance.ProcessingStatus = models.ComplianceStatusWithAssessor
		compliance.CustomerStatus = models.ComplianceStatusWithAssessor
		if err := tx.Save(&compliance).Error; err != nil {
			return fmt.Errorf("failed to save compliance: %w", err)
		}

		_, err = s.audit.Record(tx, models.ResourceTypeCompliance, compliance.ID,
			fmt.Sprintf("Lodge compliance %d", compliance.ID), actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &compliance, nil
}

// Accept marks a lodged compliance as approved. Only assessors for the proposal may accept.
func (s *ComplianceService) Accept(ctx context.Context, actor *models.User, id uint) (*models.Compliance, error) {
	var compliance models.Compliance
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		proposal, err := s.load(tx, id, &compliance)
		if err != nil {
			return err
		}

		group, err := s.authorization.AssessorGroup(tx, proposal)
		if err != nil {
			return err
		}
		member, err := s.authorization.IsMember(tx, group.ID, actor.ID)
		if err != nil {
			return err
		}
		if !member {
			return notAuthorized("You are not an assessor for this compliance")
		}
		if compliance.ProcessingStatus != models.ComplianceStatusWithAssessor {
			return invalidStatus("The compliance has not been lodged")
		}

		compliance.ProcessingStatus = models.ComplianceStatusApproved
		compliance.CustomerStatus = models.ComplianceStatusApproved
		if err := tx.Save(&compliance).Error; err != nil {
			return fmt.Errorf("failed to save compliance: %w", err)
		}

		_, err = s.audit.Record(tx, models.ResourceTypeCompliance, compliance.ID,
			fmt.Sprintf("Accept compliance %d", compliance.ID), actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &compliance, nil
}

func (s *ComplianceService) load(tx *gorm.DB, id uint, compliance *models.Compliance) (*models.Proposal, error) {
	if err := tx.First(compliance, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: compliance %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load compliance: %w", err)
	}

	var proposal models.Proposal
	if err := tx.First(&proposal, compliance.ProposalID).Error; err != nil {
		return nil, fmt.Errorf("failed to load proposal %d: %w", compliance.ProposalID, err)
	}
	return &proposal, nil
}

// isProponent reports whether the actor submitted the proposal or belongs to its applicant organisation.
func (s *ComplianceService) isProponent(tx *gorm.DB, p *models.Proposal, actor *models.User) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if p.SubmitterID != nil && *p.SubmitterID == actor.ID {
		return true, nil
	}
	if p.ApplicantID == nil {
		return false, nil
	}

	var count int64
	err := tx.Table("organisation_members").
		Where("organisation_id = ? AND user_id = ?", *p.ApplicantID, actor.ID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check organisation membership: %w", err)
	}
	return count > 0, nil
}
