package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TherapistScheduleRule is a recurring weekly availability block in the therapist's local time.
// DayOfWeek follows time.Weekday (0 = Sunday).
type TherapistScheduleRule struct {
	ID                     string      `db:"id" json:"id"`
	TherapistID            string      `db:"therapist_id" json:"therapist_id"`
	DayOfWeek              int         `db:"day_of_week" json:"day_of_week"`
	StartTime              string      `db:"start_time" json:"start_time"`
	EndTime                string      `db:"end_time" json:"end_time"`
	SessionDurationMinutes int         `db:"session_duration_minutes" json:"session_duration_minutes"`
	SessionType            SessionType `db:"session_type" json:"session_type"`
	MaxSessions            int         `db:"max_sessions" json:"max_sessions"`
	IsActive               bool        `db:"is_active" json:"is_active"`
	CreatedAt              time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time   `db:"updated_at" json:"updated_at"`
}

// ParseClock converts "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	limits := []int{24, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid clock value %q", value)
		}
		total += time.Duration(n) * units[i]
	}
	if total > 24*time.Hour {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	return total, nil
}
