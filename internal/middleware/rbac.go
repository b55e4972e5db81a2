package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
	"github.com/noah-isme/therapy-booking-api/pkg/response"
)

// RequireUserTypes admits only callers whose token carries one of the given user types.
// Ownership of individual sessions is enforced by the services.
func RequireUserTypes(types ...models.UserType) gin.HandlerFunc {
	allowed := make(map[models.UserType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.UserType]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "user type not permitted"))
			c.Abort()
			return
		}
		c.Next()
	}
}
