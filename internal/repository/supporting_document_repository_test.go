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

func TestSupportingDocumentRepositoryCreateAndList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSupportingDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO supporting_documents")).
		WithArgs(sqlmock.AnyArg(), "req-1", "ktm.pdf", "https://files.example.com/ktm.pdf", "staff-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.SupportingDocument{RequestID: "req-1", FileName: "ktm.pdf", FileURL: "https://files.example.com/ktm.pdf", UploadedBy: "staff-1"}
	require.NoError(t, repo.Create(context.Background(), nil, doc))

	rows := sqlmock.NewRows([]string{"id", "request_id", "file_name", "file_url", "uploaded_by", "uploaded_at"}).
		AddRow(doc.ID, "req-1", "ktm.pdf", "https://files.example.com/ktm.pdf", "staff-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM supporting_documents WHERE request_id = $1 ORDER BY uploaded_at ASC, id ASC")).
		WithArgs("req-1").
		WillReturnRows(rows)

	docs, err := repo.ListByRequest(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
