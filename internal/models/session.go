package models

import "time"

// SessionStatus captures the lifecycle state of a booked session.
type SessionStatus string

const (
	SessionStatusPendingApproval SessionStatus = "pending_approval"
	SessionStatusScheduled       SessionStatus = "scheduled"
	SessionStatusInProgress      SessionStatus = "in_progress"
	SessionStatusCompleted       SessionStatus = "completed"
	SessionStatusCancelled       SessionStatus = "cancelled"
	SessionStatusNoShow          SessionStatus = "no_show"
)

// NonBlockingStatuses never hold a therapist's time.
var NonBlockingStatuses = []string{
	string(SessionStatusCancelled),
	string(SessionStatusCompleted),
	string(SessionStatusNoShow),
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusPendingApproval: {SessionStatusScheduled, SessionStatusCancelled, SessionStatusNoShow},
	SessionStatusScheduled:       {SessionStatusInProgress, SessionStatusCancelled, SessionStatusNoShow},
	SessionStatusInProgress:      {SessionStatusCompleted, SessionStatusCancelled, SessionStatusNoShow},
}

// IsBlocking reports whether a session in this status occupies the therapist's time.
func (s SessionStatus) IsBlocking() bool {
	switch s {
	case SessionStatusCancelled, SessionStatusCompleted, SessionStatusNoShow:
		return false
	default:
		return true
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return len(sessionTransitions[s]) == 0
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SessionType is the delivery channel of a session.
type SessionType string

const (
	SessionTypeVideo SessionType = "video"
	SessionTypeAudio SessionType = "audio"
	SessionTypeChat  SessionType = "chat"
)

// Valid reports whether the type is one of the supported channels.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeVideo, SessionTypeAudio, SessionTypeChat:
		return true
	default:
		return false
	}
}

// Session is the atomic unit of booking. Start and end are absolute instants.
type Session struct {
	ID              string        `db:"id" json:"id"`
	UserID          string        `db:"user_id" json:"user_id"`
	TherapistID     string        `db:"therapist_id" json:"therapist_id"`
	StartTime       time.Time     `db:"start_time" json:"start_time"`
	EndTime         time.Time     `db:"end_time" json:"end_time"`
	DurationMinutes int           `db:"duration_minutes" json:"duration_minutes"`
	SessionType     SessionType   `db:"session_type" json:"session_type"`
	Status          SessionStatus `db:"status" json:"status"`
	CreditUsedID    *string       `db:"credit_used_id" json:"credit_used_id,omitempty"`
	CreatedBy       string        `db:"created_by" json:"created_by"`
	Notes           *string       `db:"notes" json:"notes,omitempty"`
	VideoRoomURL    *string       `db:"video_room_url" json:"video_room_url,omitempty"`
	JoinedAt        *time.Time    `db:"joined_at" json:"joined_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// HasCredit reports whether a credit reservation backs the session.
func (s *Session) HasCredit() bool {
	return s != nil && s.CreditUsedID != nil && *s.CreditUsedID != ""
}

// IsParticipant reports whether the actor is the client or therapist of the session.
func (s *Session) IsParticipant(actor Actor) bool {
	if s == nil {
		return false
	}
	return actor.UserID != "" && (actor.UserID == s.UserID || actor.UserID == s.TherapistID)
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	UserID      string
	TherapistID string
	Status      *SessionStatus
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}
