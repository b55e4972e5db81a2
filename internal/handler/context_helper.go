package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/therapy-booking-api/internal/middleware"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
	"github.com/noah-isme/therapy-booking-api/pkg/response"
)

// actorFromContext writes a 401 and returns false when no verified actor is attached.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}
