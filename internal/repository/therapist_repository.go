package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

const therapistColumns = `id, display_name, title, timezone, avatar_url, is_active, is_approved, created_at, updated_at`

// TherapistRepository reads the therapist directory.
type TherapistRepository struct {
	db *sqlx.DB
}

// NewTherapistRepository builds repository.
func NewTherapistRepository(db *sqlx.DB) *TherapistRepository {
	return &TherapistRepository{db: db}
}

// FindByID returns a therapist or sql.ErrNoRows.
func (r *TherapistRepository) FindByID(ctx context.Context, id string) (*models.Therapist, error) {
	var therapist models.Therapist
	query := `SELECT ` + therapistColumns + ` FROM therapists WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &therapist, query, id); err != nil {
		return nil, err
	}
	return &therapist, nil
}

// FindByIDs resolves several therapists at once keyed by id.
func (r *TherapistRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Therapist, error) {
	result := make(map[string]*models.Therapist, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var therapists []models.Therapist
	query := `SELECT ` + therapistColumns + ` FROM therapists WHERE id = ANY($1)`
	if err := sqlx.SelectContext(ctx, r.db, &therapists, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list therapists: %w", err)
	}
	for i := range therapists {
		result[therapists[i].ID] = &therapists[i]
	}
	return result, nil
}
