package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

// RequireRoles lets the request through only for operators holding one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		operator := Operator(c)
		if operator == nil {
			abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[operator.Role]; !ok {
			abort(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(operator.Role)+" cannot access transitions"))
			return
		}
		c.Next()
	}
}
