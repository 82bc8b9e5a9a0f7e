package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

const letterRequestColumns = `lr.id, lr.student_id, lr.created_by, lr.letter_type, lr.purpose, lr.priority, lr.status,
lr.current_handler, lr.dekan_instructions, lr.final_letter_url, lr.signature_data, lr.signed_at, lr.created_at, lr.updated_at`

// LetterRequestRepository persists letter requests and their workflow fields.
type LetterRequestRepository struct {
	db *sqlx.DB
}

// NewLetterRequestRepository constructs the repository.
func NewLetterRequestRepository(db *sqlx.DB) *LetterRequestRepository {
	return &LetterRequestRepository{db: db}
}

func (r *LetterRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new letter request.
func (r *LetterRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, request *models.LetterRequest) error {
	if request == nil {
		return fmt.Errorf("letter request payload is nil")
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt

	const query = `INSERT INTO letter_requests (id, student_id, created_by, letter_type, purpose, priority, status, current_handler, dekan_instructions, final_letter_url, signature_data, signed_at, created_at, updated_at)
VALUES (:id, :student_id, :created_by, :letter_type, :purpose, :priority, :status, :current_handler, :dekan_instructions, :final_letter_url, :signature_data, :signed_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, request); err != nil {
		return fmt.Errorf("create letter request: %w", err)
	}
	return nil
}

// FindByID loads a letter request by identifier.
func (r *LetterRequestRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LetterRequest, error) {
	query := `SELECT ` + letterRequestColumns + ` FROM letter_requests lr WHERE lr.id = $1`
	var request models.LetterRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &request, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find letter request: %w", err)
	}
	return &request, nil
}

// UpdateWorkflowParams captures one workflow transition. Nil pointers leave the
// column untouched. ExpectedStatus guards against a concurrent transition.
type UpdateWorkflowParams struct {
	ID                string
	ExpectedStatus    models.LetterStatus
	Status            models.LetterStatus
	CurrentHandler    *string
	DekanInstructions *string
	FinalLetterURL    *string
	SignatureData     *string
	SignedAt          *time.Time
	UpdatedAt         time.Time
}

// UpdateWorkflow applies a transition. It returns sql.ErrNoRows when the row is
// missing or no longer in ExpectedStatus.
func (r *LetterRequestRepository) UpdateWorkflow(ctx context.Context, exec sqlx.ExtContext, params UpdateWorkflowParams) error {
	if params.UpdatedAt.IsZero() {
		params.UpdatedAt = time.Now().UTC()
	}
	set := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{params.Status, params.UpdatedAt}
	argPos := 3

	if params.CurrentHandler != nil {
		set = append(set, fmt.Sprintf("current_handler = $%d", argPos))
		args = append(args, *params.CurrentHandler)
		argPos++
	}
	if params.DekanInstructions != nil {
		set = append(set, fmt.Sprintf("dekan_instructions = $%d", argPos))
		args = append(args, *params.DekanInstructions)
		argPos++
	}
	if params.FinalLetterURL != nil {
		set = append(set, fmt.Sprintf("final_letter_url = $%d", argPos))
		args = append(args, *params.FinalLetterURL)
		argPos++
	}
	if params.SignatureData != nil {
		set = append(set, fmt.Sprintf("signature_data = $%d", argPos))
		args = append(args, *params.SignatureData)
		argPos++
	}
	if params.SignedAt != nil {
		set = append(set, fmt.Sprintf("signed_at = $%d", argPos))
		args = append(args, *params.SignedAt)
		argPos++
	}

	query := fmt.Sprintf("UPDATE letter_requests SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, params.ID)
	if params.ExpectedStatus != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos+1)
		args = append(args, params.ExpectedStatus)
	}

	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update letter request workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("letter request rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns requests matching filter ordered by newest first together with
// the total number of matches.
func (r *LetterRequestRepository) List(ctx context.Context, filter models.LetterRequestFilter) ([]models.LetterRequest, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.ScopeCreatedBy != "" {
		add("lr.created_by = ?", filter.ScopeCreatedBy)
	}
	if filter.ScopeProgram != "" {
		add("s.program = ?", filter.ScopeProgram)
	}
	if filter.ScopeParticipant != "" {
		add("(lr.created_by = ? OR lr.current_handler = ?)", filter.ScopeParticipant)
	}
	if filter.Status != "" {
		add("lr.status = ?", filter.Status)
	}
	if filter.Priority != "" {
		add("lr.priority = ?", filter.Priority)
	}
	if filter.StudentNIM != "" {
		add("s.nim = ?", filter.StudentNIM)
	}
	if filter.CreatedBy != "" {
		add("lr.created_by = ?", filter.CreatedBy)
	}
	if filter.CurrentHandler != "" {
		add("lr.current_handler = ?", filter.CurrentHandler)
	}
	if filter.CreatedFrom != nil {
		add("lr.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("lr.created_at <= ?", *filter.CreatedTo)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	from := ` FROM letter_requests lr JOIN students s ON s.id = lr.student_id WHERE ` + strings.Join(conditions, " AND ")
	query := `SELECT ` + letterRequestColumns + from + fmt.Sprintf(" ORDER BY lr.created_at DESC, lr.id DESC LIMIT %d OFFSET %d", limit, offset)

	var requests []models.LetterRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list letter requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from, args...); err != nil {
		return nil, 0, fmt.Errorf("count letter requests: %w", err)
	}
	return requests, total, nil
}
