package models

import "time"

// SessionConflict describes an existing session that overlaps a candidate window.
type SessionConflict struct {
	SessionID string        `json:"session_id"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Status    SessionStatus `json:"status"`
}

// ConflictResult is the outcome of a conflict check.
type ConflictResult struct {
	Conflict            bool              `json:"conflict"`
	ConflictingSessions []SessionConflict `json:"conflicting_sessions"`
}

// BookingConflictError is returned when a candidate window collides with an existing session.
type BookingConflictError struct {
	Message    string            `json:"message"`
	Conflicts  []SessionConflict `json:"conflicts"`
	Suggestion string            `json:"suggestion"`
}

// Error implements the error interface for conflict errors.
func (e *BookingConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// ConflictsFromSessions projects sessions into conflict descriptors.
func ConflictsFromSessions(sessions []Session) []SessionConflict {
	out := make([]SessionConflict, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionConflict{SessionID: s.ID, Start: s.StartTime, End: s.EndTime, Status: s.Status})
	}
	return out
}
