package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

func TestCreditRepositoryListSpendableForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "user_type", "credits_balance", "is_free_credit", "origin", "expires_at", "status", "created_at", "updated_at"}).
		AddRow("g-free", "u-1", "client", 1, true, "bonus", nil, "active", now.Add(-time.Hour), now).
		AddRow("g-paid", "u-1", "client", 4, false, "purchase", nil, "active", now.Add(-48*time.Hour), now)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY is_free_credit DESC, created_at ASC, id ASC\nFOR UPDATE")).
		WithArgs("u-1", now).
		WillReturnRows(rows)

	grants, err := repo.ListSpendableForUpdate(context.Background(), nil, "u-1", now)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "g-free", grants[0].ID)
	assert.Equal(t, models.CreditGrantActive, grants[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryDecrementExhaustedGrant(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET credits_balance = credits_balance - 1")).
		WithArgs("g-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Decrement(context.Background(), nil, "g-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryIncrementReactivates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("status = CASE WHEN status = 'exhausted' THEN 'active' ELSE status END")).
		WithArgs("g-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Increment(context.Background(), nil, "g-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryExpireOverdue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_grants SET status = 'expired'")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpireOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
