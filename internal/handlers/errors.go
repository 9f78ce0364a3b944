// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/middleware"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

// respondError maps service errors onto the API envelope. resource names the
// "<resource>.not_found" message used for 404s.
func respondError(c *gin.Context, err error, resource string) {
	_ = c.Error(err)

	var missing *services.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		utils.ErrorResponse(c, http.StatusBadRequest, "MISSING_FIELDS", missing.Error(), gin.H{"fields": missing.Fields})
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, services.ErrNotAuthorized):
		utils.ForbiddenResponse(c, services.ErrorMessage(err))
	case errors.Is(err, services.ErrInvalidStatus):
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_STATUS", services.ErrorMessage(err), nil)
	case errors.Is(err, services.ErrDuplicate):
		utils.ConflictResponse(c, services.ErrorMessage(err))
	case errors.Is(err, services.ErrReferralCannotSend):
		utils.ErrorResponse(c, http.StatusBadRequest, "REFERRAL_CANNOT_SEND", services.ErrorMessage(err), nil)
	case errors.Is(err, services.ErrValidation):
		if details := utils.GetValidationErrors(err); len(details) > 0 {
			utils.ValidationErrorResponse(c, details)
			return
		}
		utils.BadRequestResponse(c, services.ErrorMessage(err), nil)
	case errors.Is(err, services.ErrNoDefaultGroup):
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Group configuration is incomplete")
		utils.InternalErrorResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyGroupsMisconfigured))
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyInvalidID, name), nil)
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return user, ok
}

// bindJSON decodes the body into req. An empty body is accepted when optional is set.
func bindJSON(c *gin.Context, req interface{}, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		if details := utils.GetValidationErrors(err); len(details) > 0 {
			utils.ValidationErrorResponse(c, details)
			return false
		}
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	return true
}

func message(c *gin.Context, key string) string {
	return i18n.T(utils.GetLangFromContext(c), key)
}
