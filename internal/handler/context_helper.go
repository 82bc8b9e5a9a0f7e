package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/letter-workflow-api/internal/middleware"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
	"github.com/noah-isme/letter-workflow-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireClaims writes 401 and returns nil when the request carries no user.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

func bindJSON(c *gin.Context, dest interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Validation(err, msg))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, key+" must be a non-negative integer"))
		return 0, false
	}
	return v, true
}
