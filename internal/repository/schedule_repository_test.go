package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsync/meetsync-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func timeBlockRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "date", "start_hour", "end_hour", "title", "type", "event_id", "created_at", "updated_at"})
}

func TestScheduleRepositoryListByUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	rows := timeBlockRows().
		AddRow("block-1", "user-1", "2024-06-10", 9, 11, "Available", "available", nil, time.Now(), time.Now()).
		AddRow("block-2", "user-1", "2024-06-10", 13, 14, "Gym", "activity", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, date, start_hour, end_hour, title, type, event_id, created_at, updated_at FROM schedules WHERE user_id = $1 ORDER BY date ASC, start_hour ASC, created_at ASC")).
		WithArgs("user-1").
		WillReturnRows(rows)

	blocks, err := repo.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, models.BlockAvailable, blocks[0].Type)
	assert.Equal(t, 13, blocks[1].StartHour)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryListWithFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedules WHERE user_id = $1 AND date >= $2 AND date <= $3")).
		WithArgs("user-1", "2024-06-01", "2024-06-30").
		WillReturnRows(timeBlockRows())

	_, err := repo.List(context.Background(), models.ScheduleFilter{
		UserID:   "user-1",
		FromDate: "2024-06-01",
		ToDate:   "2024-06-30",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs(sqlmock.AnyArg(), "user-1", "2024-06-10", 9, 10, "Busy", "busy", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	block := &models.TimeBlock{
		UserID:    "user-1",
		Date:      "2024-06-10",
		StartHour: 9,
		EndHour:   10,
		Type:      models.BlockBusy,
	}
	require.NoError(t, repo.Create(context.Background(), block))
	assert.NotEmpty(t, block.ID, "id assigned on insert")
	assert.Equal(t, "Busy", block.Title, "title defaulted from type")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryBulkCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs(sqlmock.AnyArg(), "user-1", "2024-06-10", 9, 10, "Available", "available", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs(sqlmock.AnyArg(), "user-1", "2024-06-10", 15, 16, "Available", "available", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	blocks := []models.TimeBlock{
		{UserID: "user-1", Date: "2024-06-10", StartHour: 9, EndHour: 10, Title: "Available", Type: models.BlockAvailable},
		{UserID: "user-1", Date: "2024-06-10", StartHour: 15, EndHour: 16, Title: "Available", Type: models.BlockAvailable},
	}
	require.NoError(t, repo.BulkCreate(context.Background(), blocks))
	assert.NotEmpty(t, blocks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryDeleteByEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedules WHERE event_id = $1 AND user_id = $2")).
		WithArgs("event-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteByEvent(context.Background(), "event-1", "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
