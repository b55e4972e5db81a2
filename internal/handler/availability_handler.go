package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/middleware"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
	"github.com/noah-isme/therapy-booking-api/pkg/response"
)

type availabilityService interface {
	GetAvailability(ctx context.Context, therapistID, date string) (*dto.AvailabilityDay, bool, error)
}

// AvailabilityHandler serves computed therapist availability.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds a new handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Get godoc
// @Summary Therapist availability for a date
// @Description Windows are absolute instants; available is false when a live session overlaps.
// @Tags Availability
// @Produce json
// @Param id path string true "Therapist ID"
// @Param date query string true "Date in the therapist's timezone (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /therapists/{id}/availability [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}
	day, hit, err := h.service.GetAvailability(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, day, nil, middleware.ExtractMeta(c))
}
