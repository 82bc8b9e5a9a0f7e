package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

const dispositionColumns = `da.id, da.request_id, da.assigned_to, da.assigned_by, da.instructions, da.order_sequence,
da.is_completed, da.completed_at, da.notes, da.created_at, u.name AS assignee_name, u.role AS assignee_role`

// DispositionRepository persists the dean's ordered officer assignments.
type DispositionRepository struct {
	db *sqlx.DB
}

// NewDispositionRepository constructs the repository.
func NewDispositionRepository(db *sqlx.DB) *DispositionRepository {
	return &DispositionRepository{db: db}
}

func (r *DispositionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateBatch inserts every assignment of one disposition decision.
func (r *DispositionRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.DispositionAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	const query = `INSERT INTO disposition_assignments (id, request_id, assigned_to, assigned_by, instructions, order_sequence, is_completed, completed_at, notes, created_at)
VALUES (:id, :request_id, :assigned_to, :assigned_by, :instructions, :order_sequence, :is_completed, :completed_at, :notes, :created_at)`
	for i := range assignments {
		if assignments[i].ID == "" {
			assignments[i].ID = uuid.NewString()
		}
		if assignments[i].CreatedAt.IsZero() {
			assignments[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, &assignments[i]); err != nil {
			return fmt.Errorf("create disposition assignment: %w", err)
		}
	}
	return nil
}

// FindByID loads an assignment by identifier.
func (r *DispositionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.DispositionAssignment, error) {
	query := `SELECT ` + dispositionColumns + ` FROM disposition_assignments da LEFT JOIN users u ON u.id = da.assigned_to WHERE da.id = $1`
	var assignment models.DispositionAssignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find disposition assignment: %w", err)
	}
	return &assignment, nil
}

// ListByRequest returns the assignments of a request in processing order.
func (r *DispositionRepository) ListByRequest(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]models.DispositionAssignment, error) {
	query := `SELECT ` + dispositionColumns + ` FROM disposition_assignments da LEFT JOIN users u ON u.id = da.assigned_to WHERE da.request_id = $1 ORDER BY da.order_sequence ASC`
	var assignments []models.DispositionAssignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, requestID); err != nil {
		return nil, fmt.Errorf("list disposition assignments: %w", err)
	}
	return assignments, nil
}

// MarkCompleted closes an open assignment. It returns sql.ErrNoRows when the
// assignment is missing or already completed.
func (r *DispositionRepository) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, completedAt time.Time, notes *string) error {
	const query = `UPDATE disposition_assignments SET is_completed = TRUE, completed_at = $1, notes = $2 WHERE id = $3 AND is_completed = FALSE`
	result, err := r.exec(exec).ExecContext(ctx, query, completedAt, notes, id)
	if err != nil {
		return fmt.Errorf("complete disposition assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("disposition assignment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasAssignment reports whether userID holds any assignment on the request.
func (r *DispositionRepository) HasAssignment(ctx context.Context, requestID, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM disposition_assignments WHERE request_id = $1 AND assigned_to = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, requestID, userID); err != nil {
		return false, fmt.Errorf("check disposition assignment: %w", err)
	}
	return exists, nil
}
