package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	"github.com/noah-isme/therapy-booking-api/internal/service"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
	"github.com/noah-isme/therapy-booking-api/pkg/response"
)

type agendaExporter interface {
	ExportAgenda(ctx context.Context, actor models.Actor, query dto.AgendaExportQuery) (*service.AgendaFile, error)
}

// ExportHandler streams agenda exports.
type ExportHandler struct {
	service agendaExporter
}

// NewExportHandler builds a new handler.
func NewExportHandler(service agendaExporter) *ExportHandler {
	return &ExportHandler{service: service}
}

// Agenda godoc
// @Summary Export the therapist agenda
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param from query string true "First local date (YYYY-MM-DD)"
// @Param to query string true "Last local date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /therapists/me/sessions/export [get]
func (h *ExportHandler) Agenda(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.AgendaExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.service.ExportAgenda(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}
