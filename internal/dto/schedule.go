package dto

import "github.com/noah-isme/therapy-booking-api/internal/models"

// ScheduleRuleRequest creates or replaces a recurring weekly rule. Times are "HH:MM" local.
type ScheduleRuleRequest struct {
	DayOfWeek              *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime              string `json:"start_time" validate:"required"`
	EndTime                string `json:"end_time" validate:"required"`
	SessionDurationMinutes int    `json:"session_duration_minutes" validate:"required,min=5,max=480"`
	SessionType            string `json:"session_type" validate:"omitempty,oneof=video audio chat"`
	MaxSessions            int    `json:"max_sessions" validate:"min=0"`
	IsActive               *bool  `json:"is_active"`
}

// AvailabilityOverrideRequest upserts the exception for a single date.
type AvailabilityOverrideRequest struct {
	Date                   string  `json:"date" validate:"required,datetime=2006-01-02"`
	IsAvailable            *bool   `json:"is_available" validate:"required"`
	StartTime              *string `json:"start_time"`
	EndTime                *string `json:"end_time"`
	SessionDurationMinutes *int    `json:"session_duration_minutes" validate:"omitempty,min=5,max=480"`
	SessionType            *string `json:"session_type" validate:"omitempty,oneof=video audio chat"`
	MaxSessions            *int    `json:"max_sessions" validate:"omitempty,min=0"`
	Reason                 *string `json:"reason" validate:"omitempty,max=500"`
}

// OverrideRangeQuery lists overrides between two dates.
type OverrideRangeQuery struct {
	From string `form:"from" validate:"required,datetime=2006-01-02"`
	To   string `form:"to" validate:"required,datetime=2006-01-02"`
}

// AvailabilitySlot annotates a computed window with live bookability.
type AvailabilitySlot struct {
	models.AvailabilityWindow
	Available bool `json:"available"`
}

// AvailabilityDay is the cached availability payload for one therapist and date.
type AvailabilityDay struct {
	TherapistID string             `json:"therapist_id"`
	Date        string             `json:"date"`
	Timezone    string             `json:"timezone"`
	Slots       []AvailabilitySlot `json:"slots"`
}
