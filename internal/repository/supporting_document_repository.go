package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

// SupportingDocumentRepository stores file references attached to requests.
type SupportingDocumentRepository struct {
	db *sqlx.DB
}

// NewSupportingDocumentRepository constructs the repository.
func NewSupportingDocumentRepository(db *sqlx.DB) *SupportingDocumentRepository {
	return &SupportingDocumentRepository{db: db}
}

// Create appends a document reference.
func (r *SupportingDocumentRepository) Create(ctx context.Context, exec sqlx.ExtContext, doc *models.SupportingDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	target := exec
	if target == nil {
		target = r.db
	}
	const query = `INSERT INTO supporting_documents (id, request_id, file_name, file_url, uploaded_by, uploaded_at)
VALUES (:id, :request_id, :file_name, :file_url, :uploaded_by, :uploaded_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, doc); err != nil {
		return fmt.Errorf("create supporting document: %w", err)
	}
	return nil
}

// ListByRequest returns the documents of a request in upload order.
func (r *SupportingDocumentRepository) ListByRequest(ctx context.Context, requestID string) ([]models.SupportingDocument, error) {
	const query = `SELECT id, request_id, file_name, file_url, uploaded_by, uploaded_at
FROM supporting_documents WHERE request_id = $1 ORDER BY uploaded_at ASC, id ASC`
	var docs []models.SupportingDocument
	if err := r.db.SelectContext(ctx, &docs, query, requestID); err != nil {
		return nil, fmt.Errorf("list supporting documents: %w", err)
	}
	return docs, nil
}
