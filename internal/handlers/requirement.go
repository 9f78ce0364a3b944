// internal/handlers/requirement.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type RequirementHandler struct {
	requirementService *services.RequirementService
}

func NewRequirementHandler(requirementService *services.RequirementService) *RequirementHandler {
	return &RequirementHandler{requirementService: requirementService}
}

// GET /proposals/:id/requirements
func (h *RequirementHandler) GetRequirements(c *gin.Context) {
	proposalID, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	requirements, err := h.requirementService.List(c.Request.Context(), proposalID)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"requirements": requirements,
	})
}

// POST /proposals/:id/requirements
func (h *RequirementHandler) CreateRequirement(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	proposalID, ok := parseID(c, "proposal")
	if !ok {
		return
	}

	var req services.RequirementRequest
	if !bindJSON(c, &req, false) {
		return
	}

	requirement, err := h.requirementService.Create(c.Request.Context(), user, proposalID, &req)
	if err != nil {
		respondError(c, err, "proposal")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":     message(c, i18n.KeyRequirementCreated),
		"requirement": requirement,
	})
}

// POST /requirements/:id/move_up
func (h *RequirementHandler) MoveUp(c *gin.Context) {
	h.move(c, true)
}

// POST /requirements/:id/move_down
func (h *RequirementHandler) MoveDown(c *gin.Context) {
	h.move(c, false)
}

func (h *RequirementHandler) move(c *gin.Context, up bool) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "requirement")
	if !ok {
		return
	}

	move := h.requirementService.MoveDown
	if up {
		move = h.requirementService.MoveUp
	}
	requirement, err := move(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err, "requirement")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     message(c, i18n.KeyRequirementMoved),
		"requirement": requirement,
	})
}

// GET /standard_requirements
func (h *RequirementHandler) GetStandardRequirements(c *gin.Context) {
	standards, err := h.requirementService.ListStandard(c.Request.Context())
	if err != nil {
		respondError(c, err, "requirement")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"standard_requirements": standards,
	})
}
