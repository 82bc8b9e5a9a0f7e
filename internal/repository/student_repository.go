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

const studentColumns = `id, nim, name, program, created_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students whose NIM or name matches search (all when empty).
func (r *StudentRepository) List(ctx context.Context, search string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	args := []interface{}{}
	if term := strings.TrimSpace(search); term != "" {
		query += ` WHERE (LOWER(nim) LIKE $1 OR LOWER(name) LIKE $1)`
		args = append(args, "%"+strings.ToLower(term)+"%")
	}
	query += ` ORDER BY name ASC, nim ASC`

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// FindByID returns a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	target := exec
	if target == nil {
		target = r.db
	}
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, target, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &student, nil
}

// ExistsByNIM reports whether a student already uses the NIM.
func (r *StudentRepository) ExistsByNIM(ctx context.Context, nim string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM students WHERE nim = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, nim); err != nil {
		return false, fmt.Errorf("check student nim: %w", err)
	}
	return exists, nil
}

// Create inserts a student row.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (id, nim, name, program, created_at) VALUES (:id, :nim, :name, :program, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
