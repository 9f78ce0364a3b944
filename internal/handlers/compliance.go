// internal/handlers/compliance.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type ComplianceHandler struct {
	complianceService *services.ComplianceService
	approvalService   *services.ApprovalService
}

func NewComplianceHandler(complianceService *services.ComplianceService, approvalService *services.ApprovalService) *ComplianceHandler {
	return &ComplianceHandler{
		complianceService: complianceService,
		approvalService:   approvalService,
	}
}

type lodgeComplianceRequest struct {
	Text string `json:"text" binding:"required"`
}

// GET /approvals/:id
func (h *ComplianceHandler) GetApproval(c *gin.Context) {
	id, ok := parseID(c, "approval")
	if !ok {
		return
	}

	approval, err := h.approvalService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "approval")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"approval": approval,
	})
}

// GET /approvals/:id/licence
func (h *ComplianceHandler) GetLicence(c *gin.Context) {
	id, ok := parseID(c, "approval")
	if !ok {
		return
	}

	download, err := h.approvalService.Licence(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "approval")
		return
	}

	if download.URL != "" {
		c.Redirect(http.StatusTemporaryRedirect, download.URL)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, download.Filename))
	c.Data(http.StatusOK, "application/pdf", download.Data)
}

// GET /approvals/:id/compliances
func (h *ComplianceHandler) GetCompliances(c *gin.Context) {
	id, ok := parseID(c, "approval")
	if !ok {
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	var compliances []models.Compliance
	var err error
	if user.IsStaff {
		compliances, err = h.complianceService.ListByApproval(c.Request.Context(), id)
	} else {
		compliances, err = h.complianceService.ListForProponent(c.Request.Context(), user, id)
	}
	if err != nil {
		respondError(c, err, "approval")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"compliances": compliances,
	})
}

// POST /compliances/:id/submit
func (h *ComplianceHandler) SubmitCompliance(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "compliance")
	if !ok {
		return
	}

	var req lodgeComplianceRequest
	if !bindJSON(c, &req, false) {
		return
	}

	compliance, err := h.complianceService.Submit(c.Request.Context(), user, id, req.Text)
	if err != nil {
		respondError(c, err, "compliance")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":    message(c, i18n.KeyComplianceSubmitted),
		"compliance": compliance,
	})
}

// POST /compliances/:id/accept
func (h *ComplianceHandler) AcceptCompliance(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "compliance")
	if !ok {
		return
	}

	compliance, err := h.complianceService.Accept(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err, "compliance")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":    message(c, i18n.KeyComplianceAccepted),
		"compliance": compliance,
	})
}
