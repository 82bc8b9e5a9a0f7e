package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
	"github.com/noah-isme/letter-workflow-api/pkg/response"
)

// RequireRoles admits callers whose token role is listed. Route-level checks
// are coarse; per-request rules live in the services.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not permitted for this endpoint"))
			c.Abort()
			return
		}
		c.Next()
	}
}
