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

type bookingService interface {
	Book(ctx context.Context, actor models.Actor, req dto.BookSessionRequest) (*dto.SessionResponse, error)
	CreateDeferred(ctx context.Context, actor models.Actor, req dto.CreateDeferredSessionRequest) (*dto.SessionResponse, error)
	Get(ctx context.Context, actor models.Actor, id string) (*dto.SessionResponse, error)
	ListMine(ctx context.Context, actor models.Actor, query dto.SessionListQuery) ([]dto.SessionResponse, *models.Pagination, error)
	ListTherapist(ctx context.Context, actor models.Actor, query dto.SessionListQuery) ([]dto.SessionResponse, *models.Pagination, error)
}

type lifecycleService interface {
	Approve(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
	Join(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
	Complete(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
	Cancel(ctx context.Context, actor models.Actor, sessionID, reason string) (*models.Session, error)
	MarkNoShow(ctx context.Context, actor models.Actor, sessionID, reason string) (*models.Session, error)
}

// SessionHandler exposes booking and lifecycle endpoints.
type SessionHandler struct {
	booking   bookingService
	lifecycle lifecycleService
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(booking bookingService, lifecycle lifecycleService) *SessionHandler {
	return &SessionHandler{booking: booking, lifecycle: lifecycle}
}

// Book godoc
// @Summary Book a session
// @Description Reserves a slot and debits one credit atomically.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.BookSessionRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Book(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BookSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	session, err := h.booking.Book(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// CreateDeferred godoc
// @Summary Create a follow-up session for a client
// @Description The client's credit is reserved when they join.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateDeferredSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /therapists/me/sessions [post]
func (h *SessionHandler) CreateDeferred(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateDeferredSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.booking.CreateDeferred(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	session, err := h.booking.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// ListMine godoc
// @Summary List the caller's sessions
// @Tags Sessions
// @Produce json
// @Param status query string false "Status filter"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) ListMine(c *gin.Context) {
	h.list(c, h.booking.ListMine)
}

// ListTherapist godoc
// @Summary List the therapist's agenda
// @Tags Sessions
// @Produce json
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /therapists/me/sessions [get]
func (h *SessionHandler) ListTherapist(c *gin.Context) {
	h.list(c, h.booking.ListTherapist)
}

func (h *SessionHandler) list(c *gin.Context, fetch func(context.Context, models.Actor, dto.SessionListQuery) ([]dto.SessionResponse, *models.Pagination, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.SessionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session query"))
		return
	}
	items, pagination, err := fetch(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Approve godoc
// @Summary Approve a pending session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/approve [post]
func (h *SessionHandler) Approve(c *gin.Context) {
	h.transition(c, func(ctx context.Context, actor models.Actor, id, _ string) (*models.Session, error) {
		return h.lifecycle.Approve(ctx, actor, id)
	})
}

// Join godoc
// @Summary Join a session
// @Description Reserves the credit for deferred sessions. Joining twice is harmless.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Router /sessions/{id}/join [post]
func (h *SessionHandler) Join(c *gin.Context) {
	h.transition(c, func(ctx context.Context, actor models.Actor, id, _ string) (*models.Session, error) {
		return h.lifecycle.Join(ctx, actor, id)
	})
}

// Complete godoc
// @Summary Complete an in-progress session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	h.transition(c, func(ctx context.Context, actor models.Actor, id, _ string) (*models.Session, error) {
		return h.lifecycle.Complete(ctx, actor, id)
	})
}

// Cancel godoc
// @Summary Cancel a session
// @Description Releases the reserved credit unless the session already started.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SessionActionRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	h.transition(c, h.lifecycle.Cancel)
}

// NoShow godoc
// @Summary Mark a session as no-show
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SessionActionRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/no-show [post]
func (h *SessionHandler) NoShow(c *gin.Context) {
	h.transition(c, h.lifecycle.MarkNoShow)
}

func (h *SessionHandler) transition(c *gin.Context, apply func(ctx context.Context, actor models.Actor, id, reason string) (*models.Session, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SessionActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action payload"))
			return
		}
	}
	session, err := apply(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
