// internal/services/authorization_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/cache"
	"github.com/javajoker/wildlife-licensing/internal/metrics"
	"github.com/javajoker/wildlife-licensing/internal/models"
)

// AuthorizationService resolves the assessor and approver groups responsible for a proposal
// and answers whether an actor may act on it. Every method takes the caller's session so
// lookups observe the caller's transaction.
type AuthorizationService struct {
	cache   *cache.GroupCache
	metrics *metrics.Metrics
}

func NewAuthorizationService(groupCache *cache.GroupCache, m *metrics.Metrics) *AuthorizationService {
	return &AuthorizationService{
		cache:   groupCache,
		metrics: m,
	}
}

// ResolveGroup picks the group of the given kind covering the activity and any of the regions.
// The lowest group id wins when several match. With no match the default group is used.
func (s *AuthorizationService) ResolveGroup(tx *gorm.DB, kind models.GroupKind, activity string, regions []string) (*models.Group, error) {
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if id, ok, err := s.cache.Get(ctx, string(kind), activity, regions); err != nil {
		logrus.WithError(err).Warn("Group cache lookup failed")
	} else if ok {
		var group models.Group
		if err := tx.First(&group, id).Error; err == nil {
			s.metrics.IncGroupResolution(string(kind), "cache")
			return &group, nil
		}
	}

	group, source, err := s.lookupGroup(tx, kind, activity, regions)
	if err != nil {
		return nil, err
	}
	s.metrics.IncGroupResolution(string(kind), source)

	if err := s.cache.Set(ctx, string(kind), activity, regions, group.ID); err != nil {
		logrus.WithError(err).Warn("Group cache store failed")
	}
	return group, nil
}

func (s *AuthorizationService) lookupGroup(tx *gorm.DB, kind models.GroupKind, activity string, regions []string) (*models.Group, string, error) {
	if len(regions) > 0 && activity != "" {
		var scope models.GroupScope
		err := tx.Where("kind = ? AND activity = ? AND region IN ?", kind, activity, regions).
			Order("group_id").
			First(&scope).Error
		switch {
		case err == nil:
			var group models.Group
			if err := tx.First(&group, scope.GroupID).Error; err != nil {
				return nil, "", fmt.Errorf("failed to load group %d: %w", scope.GroupID, err)
			}
			return &group, "scope", nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, "", fmt.Errorf("failed to query group scopes: %w", err)
		}
	}

	var group models.Group
	if err := tx.Where("kind = ? AND is_default = ?", kind, true).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("kind", kind).Error("No default group configured")
			return nil, "", fmt.Errorf("%w: %s", ErrNoDefaultGroup, kind)
		}
		return nil, "", fmt.Errorf("failed to load default %s group: %w", kind, err)
	}
	return &group, "default", nil
}

func (s *AuthorizationService) AssessorGroup(tx *gorm.DB, p *models.Proposal) (*models.Group, error) {
	return s.ResolveGroup(tx, models.GroupKindAssessor, p.Activity, p.RegionsList())
}

func (s *AuthorizationService) ApproverGroup(tx *gorm.DB, p *models.Proposal) (*models.Group, error) {
	return s.ResolveGroup(tx, models.GroupKindApprover, p.Activity, p.RegionsList())
}

// IsMember reports whether the user belongs to the group.
func (s *AuthorizationService) IsMember(tx *gorm.DB, groupID, userID uint) (bool, error) {
	var count int64
	err := tx.Table("group_members").
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return count > 0, nil
}

// CanAssess reports whether the user may perform assessor or approver actions in the proposal's current state.
func (s *AuthorizationService) CanAssess(tx *gorm.DB, p *models.Proposal, user *models.User) (bool, error) {
	if user == nil {
		return false, nil
	}

	var group *models.Group
	var err error
	switch p.ProcessingStatus {
	case models.ProcessingStatusWithAssessor, models.ProcessingStatusWithReferral, models.ProcessingStatusWithAssessorRequirements:
		group, err = s.AssessorGroup(tx, p)
	case models.ProcessingStatusWithApprover:
		group, err = s.ApproverGroup(tx, p)
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.IsMember(tx, group.ID, user.ID)
}

// IsApprover reports membership of the proposal's approver group regardless of status.
func (s *AuthorizationService) IsApprover(tx *gorm.DB, p *models.Proposal, user *models.User) (bool, error) {
	group, err := s.ApproverGroup(tx, p)
	if err != nil {
		return false, err
	}
	return s.IsMember(tx, group.ID, user.ID)
}

// HasAssessorMode reports whether the user should see the proposal in assessor mode.
func (s *AuthorizationService) HasAssessorMode(tx *gorm.DB, p *models.Proposal, user *models.User) (bool, error) {
	switch p.ProcessingStatus {
	case models.ProcessingStatusWithApprover, models.ProcessingStatusApproved,
		models.ProcessingStatusDeclined, models.ProcessingStatusDraft:
		return false, nil
	}

	if p.AssignedOfficerID != nil && *p.AssignedOfficerID != user.ID {
		return false, nil
	}

	group, err := s.AssessorGroup(tx, p)
	if err != nil {
		return false, err
	}
	return s.IsMember(tx, group.ID, user.ID)
}

// AllowedAssessors lists the users that can be assigned in the proposal's current state.
func (s *AuthorizationService) AllowedAssessors(tx *gorm.DB, p *models.Proposal) ([]models.User, error) {
	var group *models.Group
	var err error
	if p.ProcessingStatus == models.ProcessingStatusWithApprover {
		group, err = s.ApproverGroup(tx, p)
	} else {
		group, err = s.AssessorGroup(tx, p)
	}
	if err != nil {
		return nil, err
	}

	var members []models.User
	if err := tx.Model(group).Order("users.id").Association("Members").Find(&members); err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	return members, nil
}

// InvalidateCache drops cached resolutions after group changes have been committed.
func (s *AuthorizationService) InvalidateCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		logrus.WithError(err).Warn("Group cache invalidation failed")
	}
}
