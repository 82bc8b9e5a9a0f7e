package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

var exportJobMockColumns = []string{"id", "request_id", "format", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}

func TestExportJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	repo := NewExportJobRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_jobs")).
		WithArgs(sqlmock.AnyArg(), "req-1", "csv", "QUEUED", 0, nil, "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ExportJob{RequestID: "req-1", Format: models.ExportFormatCSV, CreatedBy: "user-1"}
	require.NoError(t, repo.Create(context.Background(), job))

	rows := sqlmock.NewRows(exportJobMockColumns).
		AddRow(job.ID, "req-1", "csv", "QUEUED", 0, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, request_id, format, status, progress, result_url, created_by, created_at, finished_at, error_message FROM export_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	now := time.Now()
	status := models.ExportStatusFinished
	progress := 100
	result := "/api/v1/exports/token"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE export_jobs SET status = $1, progress = $2, result_url = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(status, progress, result, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateExportJobParams{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &result,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	rows := sqlmock.NewRows(exportJobMockColumns).
		AddRow("job-1", "req-1", "pdf", "QUEUED", 0, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryListFinishedBefore(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	rows := sqlmock.NewRows(exportJobMockColumns).
		AddRow("job-1", "req-1", "csv", "FINISHED", 100, "/api/v1/exports/token", "user-1", time.Now().Add(-48*time.Hour), time.Now().Add(-25*time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	jobs, err := repo.ListFinishedBefore(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
