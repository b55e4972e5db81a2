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

func TestScheduleRuleRepositoryListByTherapistAndDay(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRuleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "therapist_id", "day_of_week", "start_time", "end_time", "session_duration_minutes", "session_type", "max_sessions", "is_active", "created_at", "updated_at"}).
		AddRow("r-1", "th-1", 1, "09:00", "17:00", 30, "video", 0, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE therapist_id = $1 AND day_of_week = $2 AND is_active = TRUE ORDER BY start_time ASC")).
		WithArgs("th-1", 1).
		WillReturnRows(rows)

	rules, err := repo.ListByTherapistAndDay(context.Background(), nil, "th-1", 1)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "09:00", rules[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRuleRepositoryReadsClockAsText(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRuleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "therapist_id", "day_of_week", "start_time", "end_time", "session_duration_minutes", "session_type", "max_sessions", "is_active", "created_at", "updated_at"}).
		AddRow("r-1", "th-1", 1, "09:00", "12:30", 30, "video", 0, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, therapist_id, day_of_week, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time,")).
		WithArgs("r-1", "th-1").
		WillReturnRows(rows)

	rule, err := repo.FindByID(context.Background(), "th-1", "r-1")
	require.NoError(t, err)

	start, err := models.ParseClock(rule.StartTime)
	require.NoError(t, err)
	end, err := models.ParseClock(rule.EndTime)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour, start)
	assert.Equal(t, 12*time.Hour+30*time.Minute, end)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClockColumnsAvoidRawTimeDecoding(t *testing.T) {
	for name, columns := range map[string]string{"rules": scheduleRuleColumns, "overrides": overrideColumns} {
		assert.Contains(t, columns, "to_char(start_time, 'HH24:MI') AS start_time", name)
		assert.Contains(t, columns, "to_char(end_time, 'HH24:MI') AS end_time", name)
		assert.NotContains(t, columns, ", start_time,", name)
	}
}

func TestScheduleRuleRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRuleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM therapist_schedule_rules WHERE id = $1 AND therapist_id = $2")).
		WithArgs("r-404", "th-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "th-1", "r-404"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
