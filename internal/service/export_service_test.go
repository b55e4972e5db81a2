package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
	"github.com/noah-isme/therapy-booking-api/pkg/export"
)

type failingRenderer struct{}

func (failingRenderer) Render(export.Dataset) ([]byte, error) {
	return nil, errors.New("renderer unavailable")
}

func newExportFixture(t *testing.T) (*ExportService, *memStore) {
	t.Helper()
	store := newMemStore()
	store.addTherapist(models.Therapist{ID: testTherapist, DisplayName: "Dr. Rivera", Timezone: "Asia/Jakarta", IsActive: true, IsApproved: true})
	notes := "intake"
	grant := "g1"
	// 2030-03-04 08:30 in Jakarta is 01:30 UTC.
	store.addSession(models.Session{
		ID: "s-1", UserID: "client-1", TherapistID: testTherapist,
		StartTime: at("01:30"), EndTime: at("02:20"), DurationMinutes: 50,
		SessionType: models.SessionTypeVideo, Status: models.SessionStatusScheduled,
		CreditUsedID: &grant, Notes: &notes,
	})
	store.addSession(models.Session{
		ID: "s-2", UserID: "client-2", TherapistID: testTherapist,
		StartTime: at("18:00"), EndTime: at("18:30"), DurationMinutes: 30,
		SessionType: models.SessionTypeAudio, Status: models.SessionStatusPendingApproval,
	})
	return NewExportService(memTherapists{store}, store, nil, nil, nil, nil), store
}

func TestExportAgendaCSVUsesTherapistZone(t *testing.T) {
	svc, _ := newExportFixture(t)

	file, err := svc.ExportAgenda(context.Background(), therapistU, dto.AgendaExportQuery{From: "2030-03-04", To: "2030-03-04"})
	require.NoError(t, err)
	assert.Equal(t, export.CSVContentType, file.ContentType)
	assert.Equal(t, "agenda_2030-03-04_2030-03-04.csv", file.Filename)

	records, err := csv.NewReader(bytes.NewReader(file.Payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2, "18:00 UTC falls on the next local day")
	assert.Equal(t, []string{"Date", "Start", "End", "Minutes", "Type", "Status", "Credit", "Client", "Notes", "Session"}, records[0])
	assert.Equal(t, []string{"2030-03-04", "08:30", "09:20", "50", "video", "scheduled", "reserved", "client-1", "intake", "s-1"}, records[1])
}

func TestExportAgendaPDF(t *testing.T) {
	svc, _ := newExportFixture(t)

	file, err := svc.ExportAgenda(context.Background(), therapistU, dto.AgendaExportQuery{From: "2030-03-04", To: "2030-03-05", Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, export.PDFContentType, file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Payload, []byte("%PDF-")))
}

func TestExportAgendaRejectsBadRequests(t *testing.T) {
	svc, _ := newExportFixture(t)
	ctx := context.Background()

	_, err := svc.ExportAgenda(ctx, clientUser, dto.AgendaExportQuery{From: "2030-03-04", To: "2030-03-04"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.ExportAgenda(ctx, therapistU, dto.AgendaExportQuery{From: "2030-03-05", To: "2030-03-04"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.ExportAgenda(ctx, therapistU, dto.AgendaExportQuery{From: "2030-01-01", To: "2030-12-31"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.ExportAgenda(ctx, therapistU, dto.AgendaExportQuery{From: "2030-03-04", To: "2030-03-04", Format: "xlsx"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestExportAgendaRenderFailure(t *testing.T) {
	_, store := newExportFixture(t)
	svc := NewExportService(memTherapists{store}, store, nil, nil, failingRenderer{}, nil)

	_, err := svc.ExportAgenda(context.Background(), therapistU, dto.AgendaExportQuery{From: "2030-03-04", To: "2030-03-04"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}
