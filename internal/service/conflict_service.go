package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

type blockingSessionReader interface {
	ListBlockingInRange(ctx context.Context, exec sqlx.ExtContext, therapistID string, start, end time.Time) ([]models.Session, error)
}

// ConflictService detects overlaps between a candidate window and a therapist's live sessions.
type ConflictService struct {
	sessions blockingSessionReader
}

// NewConflictService constructs the detector.
func NewConflictService(sessions blockingSessionReader) *ConflictService {
	return &ConflictService{sessions: sessions}
}

// HasConflict reports every non-terminal session whose [start, end) overlaps the candidate.
// Pass the transaction's exec so the answer reflects lock-protected data.
func (s *ConflictService) HasConflict(ctx context.Context, exec sqlx.ExtContext, therapistID string, start, end time.Time) (*models.ConflictResult, error) {
	if !start.Before(end) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session end must be after start")
	}
	candidates, err := s.sessions.ListBlockingInRange(ctx, exec, therapistID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}

	overlapping := make([]models.Session, 0, len(candidates))
	for _, session := range candidates {
		if !session.Status.IsBlocking() {
			continue
		}
		if models.Overlaps(session.StartTime, session.EndTime, start, end) {
			overlapping = append(overlapping, session)
		}
	}
	return &models.ConflictResult{
		Conflict:            len(overlapping) > 0,
		ConflictingSessions: models.ConflictsFromSessions(overlapping),
	}, nil
}

func conflictError(conflicts []models.SessionConflict) error {
	detail := &models.BookingConflictError{
		Message:    "requested time overlaps an existing session",
		Conflicts:  conflicts,
		Suggestion: "choose another time",
	}
	err := appErrors.Wrap(detail, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, detail.Message)
	err.Details = detail
	return err
}
