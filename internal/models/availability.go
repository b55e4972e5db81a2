package models

import "time"

// Window sources.
const (
	WindowSourceRule     = "rule"
	WindowSourceOverride = "override"
)

// AvailabilityWindow is one bookable start-slot expressed in absolute time.
type AvailabilityWindow struct {
	Start           time.Time   `json:"start"`
	End             time.Time   `json:"end"`
	DurationMinutes int         `json:"duration_minutes"`
	SessionType     SessionType `json:"session_type"`
	MaxSessions     int         `json:"max_sessions"`
	Source          string      `json:"source"`
}

// Overlaps reports whether the window intersects [start, end).
func (w AvailabilityWindow) Overlaps(start, end time.Time) bool {
	return Overlaps(w.Start, w.End, start, end)
}

// Overlaps applies half-open interval semantics: touching endpoints do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}
