// internal/handlers/group.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type GroupHandler struct {
	groupService *services.GroupService
}

func NewGroupHandler(groupService *services.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// GET /groups?kind=assessor|approver
func (h *GroupHandler) GetGroups(c *gin.Context) {
	kind := models.GroupKind(c.Query("kind"))
	switch kind {
	case "", models.GroupKindAssessor, models.GroupKindApprover:
	default:
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "group kind"), nil)
		return
	}

	groups, err := h.groupService.ListGroups(c.Request.Context(), kind)
	if err != nil {
		respondError(c, err, "group")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"groups": groups,
	})
}

// GET /groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	id, ok := parseID(c, "group")
	if !ok {
		return
	}

	group, err := h.groupService.GetGroup(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "group")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"group": group,
	})
}

// POST /groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.GroupRequest
	if !bindJSON(c, &req, false) {
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), user, &req)
	if err != nil {
		respondError(c, err, "group")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyGroupCreated),
		"group":   group,
	})
}

// PUT /groups/:id
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "group")
	if !ok {
		return
	}

	var req services.GroupRequest
	if !bindJSON(c, &req, false) {
		return
	}

	group, err := h.groupService.UpdateGroup(c.Request.Context(), user, id, &req)
	if err != nil {
		respondError(c, err, "group")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyGroupUpdated),
		"group":   group,
	})
}
