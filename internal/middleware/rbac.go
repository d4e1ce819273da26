package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/loan-desk-api/internal/models"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
	"github.com/noah-isme/loan-desk-api/pkg/response"
)

// Self is a pseudo role admitting callers whose id matches the :userId route param.
const Self = "SELF"

// Claims returns the verified token claims, or nil on unauthenticated routes.
func Claims(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

// RBAC admits callers holding one of the allowed roles, or Self.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]bool, len(allowed))
	self := false
	for _, role := range allowed {
		if role == Self {
			self = true
			continue
		}
		roles[models.UserRole(role)] = true
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		switch {
		case claims == nil:
			response.Error(c, appErrors.ErrUnauthorized)
		case roles[claims.Role]:
			c.Next()
			return
		case self && c.Param("userId") != "" && c.Param("userId") == claims.UserID:
			c.Next()
			return
		default:
			response.Error(c, appErrors.ErrForbidden)
		}
		c.Abort()
	}
}

// RequireRoles admits only the listed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		allowed = append(allowed, string(role))
	}
	return RBAC(allowed...)
}

// RequireStaff admits library staff and administrators.
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.RoleStaff, models.RoleAdmin)
}
