package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

// TrackingLogRepository is the append-only audit trail store. It exposes no
// update or delete.
type TrackingLogRepository struct {
	db *sqlx.DB
}

// NewTrackingLogRepository constructs the repository.
func NewTrackingLogRepository(db *sqlx.DB) *TrackingLogRepository {
	return &TrackingLogRepository{db: db}
}

// Create appends a log entry.
func (r *TrackingLogRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.TrackingLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	target := exec
	if target == nil {
		target = r.db
	}
	const query = `INSERT INTO tracking_logs (id, request_id, user_id, action_type, description, notes, previous_status, new_status, created_at)
VALUES (:id, :request_id, :user_id, :action_type, :description, :notes, :previous_status, :new_status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
		return fmt.Errorf("create tracking log: %w", err)
	}
	return nil
}

// ListByRequest returns the complete history of a request, oldest first.
func (r *TrackingLogRepository) ListByRequest(ctx context.Context, requestID string) ([]models.TrackingLog, error) {
	const query = `SELECT tl.id, tl.request_id, tl.user_id, tl.action_type, tl.description, tl.notes, tl.previous_status, tl.new_status, tl.created_at,
u.name AS user_name, u.role AS user_role
FROM tracking_logs tl LEFT JOIN users u ON u.id = tl.user_id
WHERE tl.request_id = $1 ORDER BY tl.created_at ASC, tl.id ASC`
	var logs []models.TrackingLog
	if err := r.db.SelectContext(ctx, &logs, query, requestID); err != nil {
		return nil, fmt.Errorf("list tracking logs: %w", err)
	}
	return logs, nil
}
