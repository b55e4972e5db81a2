package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
	"github.com/noah-isme/therapy-booking-api/pkg/response"
)

type scheduleService interface {
	ListRules(ctx context.Context, actor models.Actor) ([]models.TherapistScheduleRule, error)
	CreateRule(ctx context.Context, actor models.Actor, req dto.ScheduleRuleRequest) (*models.TherapistScheduleRule, error)
	UpdateRule(ctx context.Context, actor models.Actor, id string, req dto.ScheduleRuleRequest) (*models.TherapistScheduleRule, error)
	DeleteRule(ctx context.Context, actor models.Actor, id string) error
	ListOverrides(ctx context.Context, actor models.Actor, query dto.OverrideRangeQuery) ([]models.AvailabilityOverride, error)
	UpsertOverride(ctx context.Context, actor models.Actor, req dto.AvailabilityOverrideRequest) (*models.AvailabilityOverride, error)
	DeleteOverride(ctx context.Context, actor models.Actor, date string) error
}

// ScheduleHandler manages the calling therapist's weekly rules and date overrides.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// ListRules godoc
// @Summary List weekly schedule rules
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /therapists/me/schedule-rules [get]
func (h *ScheduleHandler) ListRules(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rules, err := h.service.ListRules(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// CreateRule godoc
// @Summary Create a weekly schedule rule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /therapists/me/schedule-rules [post]
func (h *ScheduleHandler) CreateRule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ScheduleRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule rule payload"))
		return
	}
	rule, err := h.service.CreateRule(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// UpdateRule godoc
// @Summary Replace a weekly schedule rule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body dto.ScheduleRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Router /therapists/me/schedule-rules/{id} [put]
func (h *ScheduleHandler) UpdateRule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ScheduleRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule rule payload"))
		return
	}
	rule, err := h.service.UpdateRule(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// DeleteRule godoc
// @Summary Delete a weekly schedule rule
// @Tags Schedules
// @Param id path string true "Rule ID"
// @Success 204
// @Router /therapists/me/schedule-rules/{id} [delete]
func (h *ScheduleHandler) DeleteRule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.DeleteRule(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListOverrides godoc
// @Summary List date overrides
// @Tags Schedules
// @Produce json
// @Param from query string true "First date (YYYY-MM-DD)"
// @Param to query string true "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /therapists/me/overrides [get]
func (h *ScheduleHandler) ListOverrides(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query := dto.OverrideRangeQuery{From: c.Query("from"), To: c.Query("to")}
	overrides, err := h.service.ListOverrides(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides, nil)
}

// UpsertOverride godoc
// @Summary Create or replace the override for a date
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.AvailabilityOverrideRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Router /therapists/me/overrides [put]
func (h *ScheduleHandler) UpsertOverride(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AvailabilityOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	override, err := h.service.UpsertOverride(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, override, nil)
}

// DeleteOverride godoc
// @Summary Remove the override for a date
// @Tags Schedules
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Router /therapists/me/overrides/{date} [delete]
func (h *ScheduleHandler) DeleteOverride(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.DeleteOverride(c.Request.Context(), actor, c.Param("date")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
