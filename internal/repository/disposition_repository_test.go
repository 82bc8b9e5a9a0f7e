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

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

var dispositionMockColumns = []string{"id", "request_id", "assigned_to", "assigned_by", "instructions", "order_sequence",
	"is_completed", "completed_at", "notes", "created_at", "assignee_name", "assignee_role"}

func TestDispositionRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispositionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO disposition_assignments")).
		WithArgs(sqlmock.AnyArg(), "req-1", "wd1-user", "dean-1", "Check", 1, false, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO disposition_assignments")).
		WithArgs(sqlmock.AnyArg(), "req-1", "kabag-user", "dean-1", "Check", 2, false, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	assignments := []models.DispositionAssignment{
		{RequestID: "req-1", AssignedTo: "wd1-user", AssignedBy: "dean-1", Instructions: "Check", OrderSequence: 1},
		{RequestID: "req-1", AssignedTo: "kabag-user", AssignedBy: "dean-1", Instructions: "Check", OrderSequence: 2},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), tx, assignments))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, assignments[0].ID)
	assert.NotEqual(t, assignments[0].ID, assignments[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispositionRepositoryListByRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispositionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(dispositionMockColumns).
		AddRow("da-1", "req-1", "wd1-user", "dean-1", "Check", 1, true, now, "done", now, "WD One", "WD1").
		AddRow("da-2", "req-1", "kabag-user", "dean-1", "Check", 2, false, nil, nil, now, "Kabag", "KABAG_TU")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE da.request_id = $1 ORDER BY da.order_sequence ASC")).
		WithArgs("req-1").
		WillReturnRows(rows)

	list, err := repo.ListByRequest(context.Background(), nil, "req-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsCompleted)
	require.NotNil(t, list[1].AssigneeRole)
	assert.Equal(t, models.RoleKabagTU, *list[1].AssigneeRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispositionRepositoryMarkCompleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispositionRepository(db)

	now := time.Now().UTC()
	notes := "reviewed"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE disposition_assignments SET is_completed = TRUE, completed_at = $1, notes = $2 WHERE id = $3 AND is_completed = FALSE")).
		WithArgs(now, &notes, "da-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkCompleted(context.Background(), nil, "da-1", now, &notes))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispositionRepositoryMarkCompletedTwice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispositionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE disposition_assignments SET is_completed = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkCompleted(context.Background(), nil, "da-1", time.Now(), nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispositionRepositoryHasAssignment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispositionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM disposition_assignments WHERE request_id = $1 AND assigned_to = $2)")).
		WithArgs("req-1", "wd1-user").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasAssignment(context.Background(), "req-1", "wd1-user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
