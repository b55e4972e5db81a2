package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
	"github.com/noah-isme/therapy-booking-api/pkg/export"
)

const maxAgendaDays = 92

type agendaSessionReader interface {
	ListForTherapistRange(ctx context.Context, therapistID string, from, to time.Time) ([]models.Session, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// AgendaFile is a rendered agenda ready to stream.
type AgendaFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders a therapist's agenda as CSV or PDF in the therapist's timezone.
type ExportService struct {
	therapists therapistReader
	sessions   agendaSessionReader
	csv        csvRenderer
	pdf        pdfRenderer
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(therapists therapistReader, sessions agendaSessionReader, validate *validator.Validate, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{therapists: therapists, sessions: sessions, csv: csv, pdf: pdf, validator: validate, logger: logger}
}

// ExportAgenda renders sessions starting on local dates [from, to].
func (s *ExportService) ExportAgenda(ctx context.Context, actor models.Actor, query dto.AgendaExportQuery) (*AgendaFile, error) {
	if err := requireTherapist(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	from, err := parseDate(query.From)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(query.To)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	if to.Sub(from) > maxAgendaDays*24*time.Hour {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("export range is limited to %d days", maxAgendaDays))
	}

	therapist, err := loadBookableTherapist(ctx, s.therapists, actor.UserID)
	if err != nil {
		return nil, err
	}
	loc := therapist.Location()
	rangeStart, _ := localDayBounds(from, loc)
	_, rangeEnd := localDayBounds(to, loc)

	sessions, err := s.sessions.ListForTherapistRange(ctx, therapist.ID, rangeStart, rangeEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load agenda")
	}

	dataset := agendaDataset(therapist, query, sessions)
	format := query.Format
	if format == "" {
		format = "csv"
	}
	var (
		payload     []byte
		contentType string
	)
	switch format {
	case "pdf":
		payload, err = s.pdf.Render(dataset)
		contentType = export.PDFContentType
	default:
		payload, err = s.csv.Render(dataset)
		contentType = export.CSVContentType
	}
	if err != nil {
		s.logger.Error("agenda render failed", zap.String("therapist_id", therapist.ID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render agenda")
	}

	return &AgendaFile{
		Filename:    fmt.Sprintf("agenda_%s_%s.%s", query.From, query.To, format),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

func agendaDataset(therapist *models.Therapist, query dto.AgendaExportQuery, sessions []models.Session) export.Dataset {
	loc := therapist.Location()
	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		credit := "deferred"
		if session.HasCredit() {
			credit = "reserved"
		}
		notes := ""
		if session.Notes != nil {
			notes = *session.Notes
		}
		rows = append(rows, map[string]string{
			"date":     session.StartTime.In(loc).Format(models.DateLayout),
			"start":    session.StartTime.In(loc).Format("15:04"),
			"end":      session.EndTime.In(loc).Format("15:04"),
			"client":   session.UserID,
			"type":     string(session.SessionType),
			"status":   string(session.Status),
			"credit":   credit,
			"notes":    notes,
			"session":  session.ID,
			"duration": fmt.Sprintf("%d", session.DurationMinutes),
		})
	}
	return export.Dataset{
		Title:    fmt.Sprintf("Agenda for %s", therapist.DisplayName),
		Subtitle: fmt.Sprintf("%s to %s (%s)", query.From, query.To, loc.String()),
		Columns: []export.Column{
			{Key: "date", Label: "Date", Width: 24},
			{Key: "start", Label: "Start", Width: 16},
			{Key: "end", Label: "End", Width: 16},
			{Key: "duration", Label: "Minutes", Width: 16},
			{Key: "type", Label: "Type", Width: 16},
			{Key: "status", Label: "Status", Width: 28},
			{Key: "credit", Label: "Credit", Width: 20},
			{Key: "client", Label: "Client"},
			{Key: "notes", Label: "Notes"},
			{Key: "session", Label: "Session"},
		},
		Rows: rows,
	}
}
