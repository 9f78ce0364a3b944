// internal/services/referral_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wildlife-licensing/internal/metrics"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

// ReferralService delegates assessment of a proposal to third parties and takes their
// result back. A referral sent by an assessor may be passed on once by its holder.
type ReferralService struct {
	db            *gorm.DB
	authorization *AuthorizationService
	audit         *AuditService
	directory     Directory
	notifier      Notifier
	metrics       *metrics.Metrics
}

type SendReferralRequest struct {
	Email string `json:"email" validate:"required,email"`
	Text  string `json:"text"`
}

func NewReferralService(db *gorm.DB, authorization *AuthorizationService, audit *AuditService, directory Directory, notifier Notifier, m *metrics.Metrics) *ReferralService {
	return &ReferralService{
		db:            db,
		authorization: authorization,
		audit:         audit,
		directory:     directory,
		notifier:      notifier,
		metrics:       m,
	}
}

// SendReferral refers a proposal that is with an assessor, or already out for referral, to the user with the given email.
func (s *ReferralService) SendReferral(ctx context.Context, actor *models.User, proposalID uint, req *SendReferralRequest) (*models.Referral, error) {
	var referral *models.Referral
	op := s.newOperation("send_referral", logrus.Fields{"proposal_id": proposalID, "actor_id": actor.ID})
	err := op.run(ctx, func(tx *gorm.DB) ([]*Message, error) {
		var p models.Proposal
		if err := loadProposal(tx, proposalID, &p); err != nil {
			return nil, err
		}
		if p.ProcessingStatus != models.ProcessingStatusWithAssessor && p.ProcessingStatus != models.ProcessingStatusWithReferral {
			return nil, fmt.Errorf("%w: A referral cannot be sent for this proposal at this time", ErrReferralCannotSend)
		}
		ok, err := s.authorization.CanAssess(tx, &p, actor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notAuthorized(msgNotAuthorisedProcess)
		}

		var msg *Message
		referral, msg, err = s.createReferral(tx, &p, actor, req, models.SentFromAssessor)
		if err != nil {
			return nil, err
		}
		return []*Message{msg}, nil
	})
	if err != nil {
		return nil, err
	}
	return referral, nil
}

// Forward lets the holder of an assessor-sent referral pass the proposal on to another user.
func (s *ReferralService) Forward(ctx context.Context, actor *models.User, referralID uint, req *SendReferralRequest) (*models.Referral, error) {
	var forwarded *models.Referral
	op := s.newOperation("forward_referral", logrus.Fields{"referral_id": referralID, "actor_id": actor.ID})
	err := op.run(ctx, func(tx *gorm.DB) ([]*Message, error) {
		current, err := s.load(tx, referralID)
		if err != nil {
			return nil, err
		}
		p := current.Proposal
		if p.ProcessingStatus != models.ProcessingStatusWithReferral {
			return nil, fmt.Errorf("%w: A referral cannot be sent for this proposal at this time", ErrReferralCannotSend)
		}
		if current.ReferralID != actor.ID {
			return nil, notAuthorized("You are not the recipient of this referral")
		}
		if current.SentFrom != models.SentFromAssessor {
			return nil, fmt.Errorf("%w: This referral was passed on by another referral and cannot be sent again", ErrReferralCannotSend)
		}

		var msg *Message
		forwarded, msg, err = s.createReferral(tx, p, actor, req, models.SentFromReferral)
		if err != nil {
			return nil, err
		}
		return []*Message{msg}, nil
	})
	if err != nil {
		return nil, err
	}
	return forwarded, nil
}

func (s *ReferralService) createReferral(tx *gorm.DB, p *models.Proposal, actor *models.User, req *SendReferralRequest, sentFrom models.SentFrom) (*models.Referral, *Message, error) {
	if req == nil {
		return nil, nil, validationError("An email address is required")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	p.ProcessingStatus = models.ProcessingStatusWithReferral
	if err := saveProposal(tx, p); err != nil {
		return nil, nil, err
	}

	user, err := s.directory.ResolveOrCreate(tx, req.Email)
	if err != nil {
		return nil, nil, err
	}

	var count int64
	if err := tx.Model(&models.Referral{}).Where("proposal_id = ? AND referral_id = ?", p.ID, user.ID).Count(&count).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to check existing referrals: %w", err)
	}
	if count > 0 {
		return nil, nil, fmt.Errorf("%w: A referral has already been sent to this user", ErrDuplicate)
	}

	referral := &models.Referral{
		ProposalID:       p.ID,
		SentByID:         actor.ID,
		ReferralID:       user.ID,
		SentFrom:         sentFrom,
		ProcessingStatus: models.ReferralStatusWithReferral,
		LodgedOn:         tx.NowFunc(),
		Text:             req.Text,
	}
	if err := tx.Omit(clause.Associations).Create(referral).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, fmt.Errorf("%w: A referral has already been sent to this user", ErrDuplicate)
		}
		return nil, nil, fmt.Errorf("failed to create referral: %w", err)
	}
	referral.Referral = user

	action := fmt.Sprintf("Send referral %d for proposal %d to %s", referral.ID, p.ID, describeUser(user))
	if err := s.audit.RecordProposal(tx, p, action, actor); err != nil {
		return nil, nil, err
	}

	return referral, s.referralMessage(TemplateReferralSent, referral, p, actor), nil
}

// Complete concludes the referral. Only its recipient may complete it.
func (s *ReferralService) Complete(ctx context.Context, actor *models.User, referralID uint) (*models.Referral, error) {
	var referral *models.Referral
	op := s.newOperation("complete_referral", logrus.Fields{"referral_id": referralID, "actor_id": actor.ID})
	err := op.run(ctx, func(tx *gorm.DB) ([]*Message, error) {
		var err error
		if referral, err = s.load(tx, referralID); err != nil {
			return nil, err
		}
		if referral.ReferralID != actor.ID {
			return nil, notAuthorized("You are not the recipient of this referral")
		}
		if referral.ProcessingStatus != models.ReferralStatusWithReferral {
			return nil, invalidStatus("The referral is not awaiting a response")
		}

		if err := s.setStatus(tx, referral, models.ReferralStatusCompleted); err != nil {
			return nil, err
		}
		action := fmt.Sprintf("Referral %d for proposal %d has been concluded by %s", referral.ID, referral.ProposalID, describeUser(referral.Referral))
		if err := s.audit.RecordProposal(tx, referral.Proposal, action, actor); err != nil {
			return nil, err
		}

		var sender models.User
		if err := tx.First(&sender, referral.SentByID).Error; err != nil {
			return nil, fmt.Errorf("failed to load referral sender: %w", err)
		}
		msg := s.referralMessage(TemplateReferralComplete, referral, referral.Proposal, actor)
		msg.To = []string{sender.Email}
		msg.Data["ReferralName"] = referral.Referral.FullName()
		return []*Message{msg}, nil
	})
	if err != nil {
		return nil, err
	}
	return referral, nil
}

// Recall withdraws an outstanding referral.
func (s *ReferralService) Recall(ctx context.Context, actor *models.User, referralID uint) (*models.Referral, error) {
	return s.assessorAction(ctx, "recall_referral", actor, referralID, func(tx *gorm.DB, r *models.Referral) (*Message, error) {
		if err := s.setStatus(tx, r, models.ReferralStatusRecalled); err != nil {
			return nil, err
		}
		action := fmt.Sprintf("Referral %d for proposal %d has been recalled", r.ID, r.ProposalID)
		if err := s.audit.RecordProposal(tx, r.Proposal, action, actor); err != nil {
			return nil, err
		}
		return s.referralMessage(TemplateReferralRecalled, r, r.Proposal, actor), nil
	})
}

// Remind sends the recipient a reminder. Nothing else changes.
func (s *ReferralService) Remind(ctx context.Context, actor *models.User, referralID uint) (*models.Referral, error) {
	return s.assessorAction(ctx, "remind_referral", actor, referralID, func(tx *gorm.DB, r *models.Referral) (*Message, error) {
		action := fmt.Sprintf("Send reminder for referral %d for proposal %d to %s", r.ID, r.ProposalID, describeUser(r.Referral))
		if err := s.audit.RecordProposal(tx, r.Proposal, action, actor); err != nil {
			return nil, err
		}
		return s.referralMessage(TemplateReferralReminder, r, r.Proposal, actor), nil
	})
}

// Resend reopens the referral as if an assessor had just sent it.
func (s *ReferralService) Resend(ctx context.Context, actor *models.User, referralID uint) (*models.Referral, error) {
	return s.assessorAction(ctx, "resend_referral", actor, referralID, func(tx *gorm.DB, r *models.Referral) (*Message, error) {
		r.Proposal.ProcessingStatus = models.ProcessingStatusWithReferral
		if err := saveProposal(tx, r.Proposal); err != nil {
			return nil, err
		}

		r.ProcessingStatus = models.ReferralStatusWithReferral
		r.SentFrom = models.SentFromAssessor
		err := tx.Model(r).Updates(map[string]interface{}{
			"processing_status": r.ProcessingStatus,
			"sent_from":         r.SentFrom,
		}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update referral: %w", err)
		}

		action := fmt.Sprintf("Resend referral %d for proposal %d to %s", r.ID, r.ProposalID, describeUser(r.Referral))
		if err := s.audit.RecordProposal(tx, r.Proposal, action, actor); err != nil {
			return nil, err
		}
		return s.referralMessage(TemplateReferralSent, r, r.Proposal, actor), nil
	})
}

func (s *ReferralService) ListForProposal(ctx context.Context, proposalID uint) ([]models.Referral, error) {
	var referrals []models.Referral
	err := s.db.WithContext(ctx).
		Preload("Referral").
		Preload("SentBy").
		Where("proposal_id = ?", proposalID).
		Order("lodged_on DESC, id DESC").
		Find(&referrals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return referrals, nil
}

// assessorAction runs fn for a referral after checking the actor may assess its proposal.
func (s *ReferralService) assessorAction(ctx context.Context, name string, actor *models.User, referralID uint, fn func(tx *gorm.DB, r *models.Referral) (*Message, error)) (*models.Referral, error) {
	var referral *models.Referral
	op := s.newOperation(name, logrus.Fields{"referral_id": referralID, "actor_id": actor.ID})
	err := op.run(ctx, func(tx *gorm.DB) ([]*Message, error) {
		var err error
		if referral, err = s.load(tx, referralID); err != nil {
			return nil, err
		}
		ok, err := s.authorization.CanAssess(tx, referral.Proposal, actor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notAuthorized(msgNotAuthorisedProcess)
		}

		msg, err := fn(tx, referral)
		if err != nil {
			return nil, err
		}
		return []*Message{msg}, nil
	})
	if err != nil {
		return nil, err
	}
	return referral, nil
}

func (s *ReferralService) load(tx *gorm.DB, id uint) (*models.Referral, error) {
	var referral models.Referral
	err := tx.Preload("Proposal").Preload("Referral").First(&referral, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: referral %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load referral: %w", err)
	}
	return &referral, nil
}

func (s *ReferralService) setStatus(tx *gorm.DB, r *models.Referral, status models.ReferralStatus) error {
	if err := tx.Model(r).Update("processing_status", status).Error; err != nil {
		return fmt.Errorf("failed to update referral: %w", err)
	}
	r.ProcessingStatus = status
	return nil
}

func (s *ReferralService) referralMessage(template string, r *models.Referral, p *models.Proposal, sender *models.User) *Message {
	var to []string
	if r.Referral != nil {
		to = []string{r.Referral.Email}
	}
	return &Message{
		Template: template,
		To:       to,
		Data: map[string]interface{}{
			"Reference":  p.Reference(),
			"Title":      p.Title,
			"ProposalID": p.ID,
			"ReferralID": r.ID,
			"SenderName": sender.FullName(),
			"Text":       r.Text,
		},
		ResourceType: models.ResourceTypeProposal,
		ResourceID:   p.ID,
	}
}

func (s *ReferralService) newOperation(name string, fields logrus.Fields) operation {
	return operation{
		db:       s.db,
		metrics:  s.metrics,
		notifier: s.notifier,
		name:     name,
		fields:   fields,
	}
}
