package models

import "time"

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// AvailabilityOverride is a date-specific exception to the weekly rules. Unique per (therapist, date).
type AvailabilityOverride struct {
	ID                     string       `db:"id" json:"id"`
	TherapistID            string       `db:"therapist_id" json:"therapist_id"`
	OverrideDate           time.Time    `db:"override_date" json:"override_date"`
	IsAvailable            bool         `db:"is_available" json:"is_available"`
	StartTime              *string      `db:"start_time" json:"start_time,omitempty"`
	EndTime                *string      `db:"end_time" json:"end_time,omitempty"`
	SessionDurationMinutes *int         `db:"session_duration_minutes" json:"session_duration_minutes,omitempty"`
	SessionType            *SessionType `db:"session_type" json:"session_type,omitempty"`
	MaxSessions            *int         `db:"max_sessions" json:"max_sessions,omitempty"`
	Reason                 *string      `db:"reason" json:"reason,omitempty"`
	CreatedAt              time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time    `db:"updated_at" json:"updated_at"`
}
