// internal/services/group_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/database"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type GroupService struct {
	db            *gorm.DB
	authorization *AuthorizationService
	audit         *AuditService
}

type GroupRequest struct {
	Name       string           `json:"name" validate:"required,max=255"`
	Kind       models.GroupKind `json:"kind" validate:"required,oneof=assessor approver"`
	Regions    []string         `json:"regions"`
	Activities []string         `json:"activities"`
	IsDefault  bool             `json:"is_default"`
	MemberIDs  []uint           `json:"member_ids"`
}

func NewGroupService(db *gorm.DB, authorization *AuthorizationService, audit *AuditService) *GroupService {
	return &GroupService{
		db:            db,
		authorization: authorization,
		audit:         audit,
	}
}

func (s *GroupService) CreateGroup(ctx context.Context, actor *models.User, req *GroupRequest) (*models.Group, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	group := &models.Group{}
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		return s.saveGroup(tx, actor, group, req)
	})
	if err != nil {
		return nil, err
	}

	s.authorization.InvalidateCache(ctx)
	return group, nil
}

func (s *GroupService) UpdateGroup(ctx context.Context, actor *models.User, id uint, req *GroupRequest) (*models.Group, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	group := &models.Group{}
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.First(group, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: group %d", ErrNotFound, id)
			}
			return fmt.Errorf("failed to load group: %w", err)
		}
		if group.Kind != req.Kind {
			return validationError("The kind of an existing group cannot be changed")
		}
		return s.saveGroup(tx, actor, group, req)
	})
	if err != nil {
		return nil, err
	}

	s.authorization.InvalidateCache(ctx)
	return group, nil
}

func (s *GroupService) GetGroup(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	if err := s.db.WithContext(ctx).Preload("Members").First(&group, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &group, nil
}

func (s *GroupService) ListGroups(ctx context.Context, kind models.GroupKind) ([]models.Group, error) {
	query := s.db.WithContext(ctx).Preload("Members").Order("id")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var groups []models.Group
	if err := query.Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (s *GroupService) saveGroup(tx *gorm.DB, actor *models.User, group *models.Group, req *GroupRequest) error {
	if req.IsDefault {
		var count int64
		query := tx.Model(&models.Group{}).Where("kind = ? AND is_default = ?", req.Kind, true)
		if group.ID != 0 {
			query = query.Where("id <> ?", group.ID)
		}
		if err := query.Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check default group: %w", err)
		}
		if count > 0 {
			return validationError("There can only be one default %s group", req.Kind)
		}
	}

	group.Name = req.Name
	group.Kind = req.Kind
	group.Regions = normalizeTags(req.Regions)
	group.Activities = normalizeTags(req.Activities)
	group.IsDefault = req.IsDefault

	if err := tx.Save(group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return validationError("There can only be one default %s group", req.Kind)
		}
		return fmt.Errorf("failed to save group: %w", err)
	}

	if err := s.rebuildScopes(tx, group); err != nil {
		return err
	}

	members := []models.User{}
	if len(req.MemberIDs) > 0 {
		if err := tx.Where("id IN ?", req.MemberIDs).Find(&members).Error; err != nil {
			return fmt.Errorf("failed to load members: %w", err)
		}
		if len(members) != len(uniqueIDs(req.MemberIDs)) {
			return validationError("One or more members do not exist")
		}
	}
	if err := tx.Model(group).Association("Members").Replace(members); err != nil {
		return fmt.Errorf("failed to update members: %w", err)
	}
	group.Members = members

	if _, err := s.audit.Record(tx, models.ResourceTypeGroup, group.ID,
		fmt.Sprintf("Save %s group %s", group.Kind, group.Name), actor); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"group_id": group.ID,
		"kind":     group.Kind,
		"scopes":   len(group.Regions) * len(group.Activities),
	}).Info("Group saved")
	return nil
}

// rebuildScopes replaces the group's (activity, region) index rows.
func (s *GroupService) rebuildScopes(tx *gorm.DB, group *models.Group) error {
	if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupScope{}).Error; err != nil {
		return fmt.Errorf("failed to clear group scopes: %w", err)
	}

	var scopes []models.GroupScope
	for _, activity := range group.Activities {
		for _, region := range group.Regions {
			scopes = append(scopes, models.GroupScope{
				GroupID:  group.ID,
				Kind:     group.Kind,
				Activity: activity,
				Region:   region,
			})
		}
	}
	if len(scopes) == 0 {
		return nil
	}
	if err := tx.Create(&scopes).Error; err != nil {
		return fmt.Errorf("failed to create group scopes: %w", err)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
