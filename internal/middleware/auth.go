// internal/middleware/auth.go
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

const userKey = "user"

// AuthRequired verifies the bearer token and loads the user it names.
func AuthRequired(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthTokenExpired))
			c.Abort()
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthUserNotFound))
			} else {
				logrus.WithError(err).WithField("user_id", claims.UserID).Error("Failed to load authenticated user")
				utils.InternalErrorResponse(c, "")
			}
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("is_staff", user.IsStaff)
		c.Set(userKey, &user)
		c.Next()
	}
}

// StaffRequired must run after AuthRequired.
func StaffRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.IsStaffFromContext(c) {
			utils.ForbiddenResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAuthStaffRequired))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user loaded by AuthRequired.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	if v, exists := c.Get(userKey); exists {
		if user, ok := v.(*models.User); ok {
			return user, true
		}
	}
	return nil, false
}
