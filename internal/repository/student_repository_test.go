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

	"github.com/noah-isme/letter-workflow-api/internal/models"
)

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryListSearch(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "nim", "name", "program", "created_at"}).
		AddRow("1", "2024001", "Student", "TI", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, nim, name, program, created_at FROM students WHERE (LOWER(nim) LIKE $1 OR LOWER(name) LIKE $1) ORDER BY name ASC, nim ASC")).
		WithArgs("%stud%").
		WillReturnRows(rows)

	students, err := repo.List(context.Background(), " Stud ")
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, "TI", students[0].Program)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, nim, name, program, created_at FROM students ORDER BY name ASC, nim ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nim", "name", "program", "created_at"}))

	students, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), "2024001", "Student", "TI", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{NIM: "2024001", Name: "Student", Program: "TI"}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByNIM(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM students WHERE nim = $1)")).
		WithArgs("2024001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByNIM(context.Background(), "2024001")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
