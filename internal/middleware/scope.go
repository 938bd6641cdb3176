package middleware

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/models"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/response"
)

// RequireScope rejects authenticated requests whose principal does not hold
// the named scope. Unlike a failed credential this is a 403: the caller is
// known, just not allowed.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !principal.HasScope(scope) {
			response.Error(c, appErrors.ErrInsufficientScope)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin limits a route to admin-scoped API keys and admin users.
// Session and JWT principals hold every data scope implicitly, but admin
// routes additionally require the IsAdmin flag on the user record.
func RequireAdmin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if principal.Kind == iauth.PrincipalAPIKey {
			if !principal.HasScope(iauth.ScopeAdmin) {
				response.Error(c, appErrors.ErrInsufficientScope)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		var user models.User
		err := db.WithContext(c.Request.Context()).
			Take(&user, "id = ?", principal.UserID).Error
		if err != nil || !user.IsAdmin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}
