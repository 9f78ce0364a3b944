// internal/services/audit_service.go
package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

// AuditService appends entries to the action trail. Record always writes through the caller's
// session so the entry commits or rolls back with the transition it describes.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Record(tx *gorm.DB, resourceType models.ResourceType, resourceID uint, action string, actor *models.User) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if actor != nil {
		entry.UserID = &actor.ID
	}

	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record audit log: %w", err)
	}
	return entry, nil
}

// RecordProposal logs the action on the proposal and, when it has one, on the applicant organisation.
func (s *AuditService) RecordProposal(tx *gorm.DB, p *models.Proposal, action string, actor *models.User) error {
	if _, err := s.Record(tx, models.ResourceTypeProposal, p.ID, action, actor); err != nil {
		return err
	}
	if p.ApplicantID != nil {
		if _, err := s.Record(tx, models.ResourceTypeOrganisation, *p.ApplicantID, action, actor); err != nil {
			return err
		}
	}
	return nil
}

// List returns the trail for one resource, newest first.
func (s *AuditService) List(ctx context.Context, resourceType models.ResourceType, resourceID uint, params utils.PaginationParams) ([]models.AuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{}).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	var logs []models.AuditLog
	err := utils.ApplyPagination(query.Preload("User").Order("created_at DESC, id DESC"), params).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}
