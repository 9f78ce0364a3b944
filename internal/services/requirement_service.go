// internal/services/requirement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wildlife-licensing/internal/database"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type RequirementService struct {
	db            *gorm.DB
	authorization *AuthorizationService
	audit         *AuditService
}

type RequirementRequest struct {
	StandardRequirementID *uint  `json:"standard_requirement_id"`
	FreeRequirement       string `json:"free_requirement"`
	DueDate               string `json:"due_date"`
	Recurrence            bool   `json:"recurrence"`
	RecurrencePattern     int    `json:"recurrence_pattern" validate:"omitempty,oneof=1 2 3"`
	RecurrenceSchedule    *int   `json:"recurrence_schedule" validate:"omitempty,min=0,max=1000"`
}

func NewRequirementService(db *gorm.DB, authorization *AuthorizationService, audit *AuditService) *RequirementService {
	return &RequirementService{
		db:            db,
		authorization: authorization,
		audit:         audit,
	}
}

// Create appends a condition to the proposal. Officers add conditions while assessing.
func (s *RequirementService) Create(ctx context.Context, actor *models.User, proposalID uint, req *RequirementRequest) (*models.Requirement, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	requirement := &models.Requirement{
		ProposalID:         proposalID,
		FreeRequirement:    strings.TrimSpace(req.FreeRequirement),
		Recurrence:         req.Recurrence,
		RecurrencePattern:  models.RecurrencePattern(req.RecurrencePattern),
		RecurrenceSchedule: req.RecurrenceSchedule,
	}
	if requirement.RecurrencePattern == 0 {
		requirement.RecurrencePattern = models.RecurrenceWeekly
	}
	if req.DueDate != "" {
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			return nil, err
		}
		requirement.DueDate = &due
	}
	if req.Recurrence && requirement.DueDate == nil {
		return nil, validationError("A recurring requirement needs a due date")
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var p models.Proposal
		if err := loadProposal(tx, proposalID, &p); err != nil {
			return err
		}
		if err := s.requireEditable(tx, &p, actor); err != nil {
			return err
		}

		if req.StandardRequirementID != nil {
			var standard models.StandardRequirement
			if err := tx.First(&standard, *req.StandardRequirementID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return validationError("The standard requirement does not exist")
				}
				return fmt.Errorf("failed to load standard requirement: %w", err)
			}
			if standard.Obsolete {
				return validationError("The standard requirement %s is obsolete", standard.Code)
			}
			requirement.Standard = true
			requirement.StandardRequirementID = &standard.ID
			requirement.StandardRequirement = &standard
		} else if requirement.FreeRequirement == "" {
			return validationError("Either a standard requirement or free text is required")
		}

		var last struct{ Max int }
		err := tx.Model(&models.Requirement{}).
			Select("COALESCE(MAX(req_order), 0) AS max").
			Where("proposal_id = ?", proposalID).
			Scan(&last).Error
		if err != nil {
			return fmt.Errorf("failed to determine requirement order: %w", err)
		}
		requirement.Order = last.Max + 1

		if err := tx.Omit(clause.Associations).Create(requirement).Error; err != nil {
			return fmt.Errorf("failed to create requirement: %w", err)
		}

		_, err = s.audit.Record(tx, models.ResourceTypeProposal, proposalID,
			fmt.Sprintf("Create requirement %d", requirement.ID), actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return requirement, nil
}

func (s *RequirementService) List(ctx context.Context, proposalID uint) ([]models.Requirement, error) {
	var requirements []models.Requirement
	err := s.db.WithContext(ctx).
		Preload("StandardRequirement").
		Where("proposal_id = ?", proposalID).
		Order("req_order, id").
		Find(&requirements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	return requirements, nil
}

// ListStandard returns the catalogue of standard requirements that are still in use.
func (s *RequirementService) ListStandard(ctx context.Context) ([]models.StandardRequirement, error) {
	var standards []models.StandardRequirement
	if err := s.db.WithContext(ctx).Where("obsolete = ?", false).Order("code").Find(&standards).Error; err != nil {
		return nil, fmt.Errorf("failed to list standard requirements: %w", err)
	}
	return standards, nil
}

func (s *RequirementService) MoveUp(ctx context.Context, actor *models.User, id uint) (*models.Requirement, error) {
	return s.move(ctx, actor, id, true)
}

func (s *RequirementService) MoveDown(ctx context.Context, actor *models.User, id uint) (*models.Requirement, error) {
	return s.move(ctx, actor, id, false)
}

// move swaps the requirement with its neighbour. At either end it is a no-op.
func (s *RequirementService) move(ctx context.Context, actor *models.User, id uint, up bool) (*models.Requirement, error) {
	var requirement models.Requirement
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.First(&requirement, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: requirement %d", ErrNotFound, id)
			}
			return fmt.Errorf("failed to load requirement: %w", err)
		}

		var p models.Proposal
		if err := loadProposal(tx, requirement.ProposalID, &p); err != nil {
			return err
		}
		if err := s.requireEditable(tx, &p, actor); err != nil {
			return err
		}

		query := tx.Where("proposal_id = ? AND id <> ?", requirement.ProposalID, requirement.ID)
		if up {
			query = query.Where("req_order < ? OR (req_order = ? AND id < ?)", requirement.Order, requirement.Order, requirement.ID).
				Order("req_order DESC, id DESC")
		} else {
			query = query.Where("req_order > ? OR (req_order = ? AND id > ?)", requirement.Order, requirement.Order, requirement.ID).
				Order("req_order, id")
		}

		var neighbour models.Requirement
		if err := query.First(&neighbour).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load neighbouring requirement: %w", err)
		}

		mine, theirs := requirement.Order, neighbour.Order
		if mine == theirs {
			if up {
				mine++
			} else {
				mine--
			}
		}
		if err := tx.Model(&neighbour).UpdateColumn("req_order", mine).Error; err != nil {
			return fmt.Errorf("failed to reorder requirement: %w", err)
		}
		if err := tx.Model(&requirement).UpdateColumn("req_order", theirs).Error; err != nil {
			return fmt.Errorf("failed to reorder requirement: %w", err)
		}
		requirement.Order = theirs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &requirement, nil
}

func (s *RequirementService) requireEditable(tx *gorm.DB, p *models.Proposal, actor *models.User) error {
	switch p.ProcessingStatus {
	case models.ProcessingStatusWithAssessor, models.ProcessingStatusWithAssessorRequirements, models.ProcessingStatusWithApprover:
	default:
		return invalidStatus("Requirements cannot be changed at this time")
	}
	ok, err := s.authorization.CanAssess(tx, p, actor)
	if err != nil {
		return err
	}
	if !ok {
		return notAuthorized(msgNotAuthorisedProcess)
	}
	return nil
}

// parseDueDate accepts dd/mm/yyyy or ISO dates.
func parseDueDate(s string) (time.Time, error) {
	if t, err := models.ParseIssuanceDate(s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, validationError("invalid due date %q", s)
}
