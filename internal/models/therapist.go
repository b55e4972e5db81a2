package models

import "time"

// Therapist is the directory entry the booking engine reads to resolve display fields and timezone.
type Therapist struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Title       *string   `db:"title" json:"title,omitempty"`
	Timezone    string    `db:"timezone" json:"timezone"`
	AvatarURL   *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	IsApproved  bool      `db:"is_approved" json:"is_approved"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Bookable reports whether clients may book this therapist.
func (t *Therapist) Bookable() bool {
	return t != nil && t.IsActive && t.IsApproved
}

// Location resolves the therapist's IANA zone, falling back to UTC.
func (t *Therapist) Location() *time.Location {
	if t == nil || t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
