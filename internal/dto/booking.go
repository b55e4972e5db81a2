package dto

import (
	"time"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

// BookSessionRequest is the client booking payload. Date and start time are wall-clock in the
// therapist's timezone.
type BookSessionRequest struct {
	TherapistID     string `json:"therapist_id" validate:"required"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=5,max=480"`
	SessionType     string `json:"session_type" validate:"required,oneof=video audio chat"`
	Notes           string `json:"notes" validate:"max=2000"`
}

// CreateDeferredSessionRequest is the therapist-initiated instant/follow-up payload.
type CreateDeferredSessionRequest struct {
	ClientID         string `json:"client_id" validate:"required"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime        string `json:"start_time" validate:"required"`
	DurationMinutes  int    `json:"duration_minutes" validate:"required,min=5,max=480"`
	SessionType      string `json:"session_type" validate:"required,oneof=video audio chat"`
	Notes            string `json:"notes" validate:"max=2000"`
	RequiresApproval bool   `json:"requires_approval"`
}

// SessionActionRequest carries an optional reason for lifecycle transitions.
type SessionActionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// TherapistSummary holds the display fields resolved into session responses.
type TherapistSummary struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Title       *string `json:"title,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Timezone    string  `json:"timezone"`
}

// SessionResponse is a session with its therapist display fields.
type SessionResponse struct {
	models.Session
	Therapist *TherapistSummary `json:"therapist,omitempty"`
}

// NewTherapistSummary projects directory data into the response shape.
func NewTherapistSummary(t *models.Therapist) *TherapistSummary {
	if t == nil {
		return nil
	}
	return &TherapistSummary{
		ID:          t.ID,
		DisplayName: t.DisplayName,
		Title:       t.Title,
		AvatarURL:   t.AvatarURL,
		Timezone:    t.Timezone,
	}
}

// SessionListQuery captures list filters from the query string.
type SessionListQuery struct {
	Status   string     `form:"status" validate:"omitempty,oneof=pending_approval scheduled in_progress completed cancelled no_show"`
	From     *time.Time `form:"from" time_format:"2006-01-02"`
	To       *time.Time `form:"to" time_format:"2006-01-02"`
	Page     int        `form:"page" validate:"omitempty,min=1"`
	PageSize int        `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// AgendaExportQuery selects the therapist agenda range and format.
type AgendaExportQuery struct {
	From   string `form:"from" validate:"required,datetime=2006-01-02"`
	To     string `form:"to" validate:"required,datetime=2006-01-02"`
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
