package dto

import (
	"time"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

// CreditSummaryResponse lists the caller's grants and spendable balance.
type CreditSummaryResponse struct {
	Available int                  `json:"available"`
	Grants    []models.CreditGrant `json:"grants"`
}

// CreditUsageEntry describes one session that consumed a credit.
type CreditUsageEntry struct {
	SessionID   string               `json:"session_id" db:"id"`
	GrantID     string               `json:"grant_id" db:"credit_used_id"`
	TherapistID string               `json:"therapist_id" db:"therapist_id"`
	StartTime   time.Time            `json:"start_time" db:"start_time"`
	Status      models.SessionStatus `json:"status" db:"status"`
}
