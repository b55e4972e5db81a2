package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/pkg/response"
)

type creditService interface {
	Summary(ctx context.Context, userID string) (*dto.CreditSummaryResponse, error)
	Usage(ctx context.Context, userID string) ([]dto.CreditUsageEntry, error)
}

// CreditHandler exposes the caller's credit ledger.
type CreditHandler struct {
	service creditService
}

// NewCreditHandler builds a new handler.
func NewCreditHandler(service creditService) *CreditHandler {
	return &CreditHandler{service: service}
}

// Summary godoc
// @Summary List credit grants and spendable balance
// @Tags Credits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /credits [get]
func (h *CreditHandler) Summary(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Usage godoc
// @Summary List sessions holding the caller's credits
// @Tags Credits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /credits/usage [get]
func (h *CreditHandler) Usage(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	entries, err := h.service.Usage(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
