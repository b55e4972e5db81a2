package models

import "time"

// CreditEffect records what a transition did to the ledger.
type CreditEffect string

const (
	CreditEffectNone      CreditEffect = "none"
	CreditEffectReserved  CreditEffect = "reserved"
	CreditEffectReleased  CreditEffect = "released"
	CreditEffectForfeited CreditEffect = "forfeited"
	CreditEffectConsumed  CreditEffect = "consumed"
)

// SessionEvent is the append-only audit row written alongside each status change.
type SessionEvent struct {
	ID           string         `db:"id" json:"id"`
	SessionID    string         `db:"session_id" json:"session_id"`
	FromStatus   *SessionStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus     SessionStatus  `db:"to_status" json:"to_status"`
	ActorID      *string        `db:"actor_id" json:"actor_id,omitempty"`
	ActorType    UserType       `db:"actor_type" json:"actor_type"`
	Reason       *string        `db:"reason" json:"reason,omitempty"`
	CreditEffect CreditEffect   `db:"credit_effect" json:"credit_effect"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
