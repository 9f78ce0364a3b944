// internal/handlers/referral.go
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type ReferralHandler struct {
	referralService *services.ReferralService
}

func NewReferralHandler(referralService *services.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralService: referralService}
}

// POST /proposals/:id/referrals
func (h *ReferralHandler) SendReferral(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	proposalID, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	var req services.SendReferralRequest
	if !bindJSON(c, &req, false) {
		return
	}

	referral, err := h.referralService.SendReferral(c.Request.Context(), user, proposalID, &req)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  message(c, i18n.KeyReferralSent),
		"referral": referral,
	})
}

// GET /proposals/:id/referrals
func (h *ReferralHandler) GetReferrals(c *gin.Context) {
	proposalID, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	referrals, err := h.referralService.ListForProposal(c.Request.Context(), proposalID)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"referrals": referrals,
	})
}

// POST /referrals/:id/send_referral
func (h *ReferralHandler) ForwardReferral(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "referral")
	if !ok {
		return
	}

	var req services.SendReferralRequest
	if !bindJSON(c, &req, false) {
		return
	}

	referral, err := h.referralService.Forward(c.Request.Context(), user, id, &req)
	if err != nil {
		respondError(c, err, "referral")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  message(c, i18n.KeyReferralSent),
		"referral": referral,
	})
}

// POST /referrals/:id/complete
func (h *ReferralHandler) Complete(c *gin.Context) {
	h.run(c, i18n.KeyReferralCompleted, h.referralService.Complete)
}

// POST /referrals/:id/recall
func (h *ReferralHandler) Recall(c *gin.Context) {
	h.run(c, i18n.KeyReferralRecalled, h.referralService.Recall)
}

// POST /referrals/:id/remind
func (h *ReferralHandler) Remind(c *gin.Context) {
	h.run(c, i18n.KeyReferralReminded, h.referralService.Remind)
}

// POST /referrals/:id/resend
func (h *ReferralHandler) Resend(c *gin.Context) {
	h.run(c, i18n.KeyReferralResent, h.referralService.Resend)
}

type referralAction func(ctx context.Context, actor *models.User, referralID uint) (*models.Referral, error)

func (h *ReferralHandler) run(c *gin.Context, successKey string, action referralAction) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "referral")
	if !ok {
		return
	}

	referral, err := action(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err, "referral")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  message(c, successKey),
		"referral": referral,
	})
}
