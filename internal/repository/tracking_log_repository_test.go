package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

func TestTrackingLogRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTrackingLogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tracking_logs")).
		WithArgs(sqlmock.AnyArg(), "req-1", "staff-1", "CREATED", "Letter request created", nil, nil, "DRAFT", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.TrackingLog{
		RequestID:   "req-1",
		UserID:      "staff-1",
		ActionType:  models.ActionCreated,
		Description: "Letter request created",
		NewStatus:   models.StatusDraft.Ptr(),
	}
	require.NoError(t, repo.Create(context.Background(), nil, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingLogRepositoryListByRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTrackingLogRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "request_id", "user_id", "action_type", "description", "notes", "previous_status", "new_status", "created_at", "user_name", "user_role"}).
		AddRow("log-1", "req-1", "staff-1", "CREATED", "Letter request created", nil, nil, "DRAFT", now, "Staff", "STAFF_PRODI").
		AddRow("log-2", "req-1", "chair-1", "APPROVED", "Status updated", "ok", "DRAFT", "APPROVED_KAPRODI", now.Add(time.Minute), "Chair", "KAPRODI")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tl.request_id = $1 ORDER BY tl.created_at ASC, tl.id ASC")).
		WithArgs("req-1").
		WillReturnRows(rows)

	logs, err := repo.ListByRequest(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Nil(t, logs[0].PreviousStatus)
	require.NotNil(t, logs[1].NewStatus)
	assert.Equal(t, models.StatusApprovedKaprodi, *logs[1].NewStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
