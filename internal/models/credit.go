package models

import (
	"sort"
	"time"
)

// CreditGrantStatus tracks whether a grant can still be spent.
type CreditGrantStatus string

const (
	CreditGrantActive    CreditGrantStatus = "active"
	CreditGrantExhausted CreditGrantStatus = "exhausted"
	CreditGrantExpired   CreditGrantStatus = "expired"
)

// CreditGrant is a purchased or bonus allotment of session credits.
type CreditGrant struct {
	ID             string            `db:"id" json:"id"`
	UserID         string            `db:"user_id" json:"user_id"`
	UserType       UserType          `db:"user_type" json:"user_type"`
	CreditsBalance int               `db:"credits_balance" json:"credits_balance"`
	IsFreeCredit   bool              `db:"is_free_credit" json:"is_free_credit"`
	Origin         string            `db:"origin" json:"origin"`
	ExpiresAt      *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
	Status         CreditGrantStatus `db:"status" json:"status"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// Spendable reports whether one credit may be taken from the grant at now.
func (g CreditGrant) Spendable(now time.Time) bool {
	if g.Status != CreditGrantActive || g.CreditsBalance <= 0 {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// SelectGrant picks the grant to debit: free before paid, then oldest first.
// Returns nil when nothing is spendable.
func SelectGrant(grants []CreditGrant, now time.Time) *CreditGrant {
	candidates := make([]CreditGrant, 0, len(grants))
	for _, g := range grants {
		if g.Spendable(now) {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.IsFreeCredit != b.IsFreeCredit {
			return a.IsFreeCredit
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	selected := candidates[0]
	return &selected
}

// AvailableCredits sums the spendable balance across grants.
func AvailableCredits(grants []CreditGrant, now time.Time) int {
	total := 0
	for _, g := range grants {
		if g.Spendable(now) {
			total += g.CreditsBalance
		}
	}
	return total
}

// CreditReservation couples one session to one unit of credit on a grant.
type CreditReservation struct {
	Granted bool   `json:"granted"`
	GrantID string `json:"grant_id,omitempty"`
}
