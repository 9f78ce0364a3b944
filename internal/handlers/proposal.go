// internal/handlers/proposal.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type ProposalHandler struct {
	proposalService *services.ProposalService
	auditService    *services.AuditService
}

func NewProposalHandler(proposalService *services.ProposalService, auditService *services.AuditService) *ProposalHandler {
	return &ProposalHandler{
		proposalService: proposalService,
		auditService:    auditService,
	}
}

type assignRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

type switchStatusRequest struct {
	Status models.ProcessingStatus `json:"status" binding:"required"`
}

// POST /proposals
func (h *ProposalHandler) CreateProposal(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateProposalRequest
	if !bindJSON(c, &req, true) {
		return
	}

	proposal, err := h.proposalService.Create(c.Request.Context(), user, &req)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  message(c, i18n.KeyProposalCreated),
		"proposal": proposal,
	})
}

// GET /proposals
func (h *ProposalHandler) GetProposals(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.ProposalFilter{
		ProcessingStatus: models.ProcessingStatus(c.Query("processing_status")),
		CustomerStatus:   models.CustomerStatus(c.Query("customer_status")),
		Activity:         c.Query("activity"),
		Region:           c.Query("region"),
	}
	if c.Query("assigned_to_me") == "true" {
		filter.AssignedOfficer = &user.ID
	}
	// Proponents only see what they lodged.
	if !user.IsStaff {
		filter.SubmitterID = &user.ID
	}

	proposals, total, err := h.proposalService.List(c.Request.Context(), filter, params)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(proposals, total, params))
}

// GET /proposals/:id
func (h *ProposalHandler) GetProposal(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	proposal, err := h.proposalService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}
	if !user.IsStaff && (proposal.SubmitterID == nil || *proposal.SubmitterID != user.ID) {
		utils.NotFoundResponse(c, "proposal")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"proposal": proposal,
	})
}

// PUT /proposals/:id
func (h *ProposalHandler) SaveDraft(c *gin.Context) {
	var req services.ProposalDataRequest
	h.run(c, i18n.KeyProposalSaved, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.SaveDraft(c.Request.Context(), user, id, &req)
	})
}

// POST /proposals/:id/submit
func (h *ProposalHandler) SubmitProposal(c *gin.Context) {
	var req services.ProposalDataRequest
	h.run(c, i18n.KeyProposalSubmitted, &req, true, func(user *models.User, id uint) (*models.Proposal, error) {
		if c.Request.ContentLength == 0 {
			return h.proposalService.Submit(c.Request.Context(), user, id, nil)
		}
		return h.proposalService.Submit(c.Request.Context(), user, id, &req)
	})
}

// POST /proposals/:id/assign_to
func (h *ProposalHandler) AssignTo(c *gin.Context) {
	var req assignRequest
	h.run(c, i18n.KeyProposalAssigned, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.AssignOfficer(c.Request.Context(), user, id, req.UserID)
	})
}

// POST /proposals/:id/assign_request_user
func (h *ProposalHandler) AssignRequestUser(c *gin.Context) {
	h.run(c, i18n.KeyProposalAssigned, nil, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.AssignRequestUser(c.Request.Context(), user, id)
	})
}

// POST /proposals/:id/unassign
func (h *ProposalHandler) Unassign(c *gin.Context) {
	h.run(c, i18n.KeyProposalUnassigned, nil, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.Unassign(c.Request.Context(), user, id)
	})
}

// POST /proposals/:id/switch_status
func (h *ProposalHandler) SwitchStatus(c *gin.Context) {
	var req switchStatusRequest
	h.run(c, i18n.KeyProposalStatusChanged, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.MoveToStatus(c.Request.Context(), user, id, req.Status)
	})
}

// POST /proposals/:id/proposed_decline
func (h *ProposalHandler) ProposedDecline(c *gin.Context) {
	var req services.DeclineRequest
	h.run(c, i18n.KeyProposalDeclineProposed, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.ProposedDecline(c.Request.Context(), user, id, &req)
	})
}

// POST /proposals/:id/final_decline
func (h *ProposalHandler) FinalDecline(c *gin.Context) {
	var req services.DeclineRequest
	h.run(c, i18n.KeyProposalDeclined, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.FinalDecline(c.Request.Context(), user, id, &req)
	})
}

// POST /proposals/:id/proposed_approval
func (h *ProposalHandler) ProposedApproval(c *gin.Context) {
	var req services.IssuanceRequest
	h.run(c, i18n.KeyProposalApprovalProposed, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.ProposedApproval(c.Request.Context(), user, id, &req)
	})
}

// POST /proposals/:id/final_approval
func (h *ProposalHandler) FinalApproval(c *gin.Context) {
	var req services.IssuanceRequest
	h.run(c, i18n.KeyProposalApproved, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.FinalApproval(c.Request.Context(), user, id, &req)
	})
}

// POST /proposals/:id/reissue_approval
func (h *ProposalHandler) ReissueApproval(c *gin.Context) {
	h.run(c, i18n.KeyProposalReissued, nil, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.ReissueApproval(c.Request.Context(), user, id)
	})
}

// POST /proposals/:id/amendment_request
func (h *ProposalHandler) RequestAmendment(c *gin.Context) {
	var req services.AmendmentRequestInput
	h.run(c, i18n.KeyProposalAmendmentRequested, &req, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.RequestAmendment(c.Request.Context(), user, id, &req)
	})
}

// POST /proposals/:id/discard
func (h *ProposalHandler) Discard(c *gin.Context) {
	h.run(c, i18n.KeyProposalDiscarded, nil, false, func(user *models.User, id uint) (*models.Proposal, error) {
		return h.proposalService.Discard(c.Request.Context(), user, id)
	})
}

// GET /proposals/:id/assessors
func (h *ProposalHandler) GetAllowedAssessors(c *gin.Context) {
	id, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	users, err := h.proposalService.AllowedAssessors(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"assessors": users,
	})
}

// GET /proposals/:id/assessor_mode
func (h *ProposalHandler) GetAssessorMode(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	mode, err := h.proposalService.HasAssessorMode(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"has_assessor_mode": mode,
	})
}

// GET /proposals/:id/action_log
func (h *ProposalHandler) GetActionLog(c *gin.Context) {
	id, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	logs, total, err := h.auditService.List(c.Request.Context(), models.ResourceTypeProposal, id, params)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}

// run covers the common shape of a proposal action: authenticate, parse the
// id, bind an optional body, call the service and answer with the proposal.
func (h *ProposalHandler) run(c *gin.Context, successKey string, req interface{}, optionalBody bool, fn func(user *models.User, id uint) (*models.Proposal, error)) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "proposal")
	if !ok {
		return
	}
	if req != nil && !bindJSON(c, req, optionalBody) {
		return
	}

	proposal, err := fn(user, id)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  message(c, successKey),
		"proposal": proposal,
	})
}
