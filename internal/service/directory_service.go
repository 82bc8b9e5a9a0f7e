package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
)

type directoryUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.User, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type directoryStudentRepository interface {
	List(ctx context.Context, search string) ([]models.Student, error)
	ExistsByNIM(ctx context.Context, nim string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
}

type directoryCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// DirectoryService manages users and students.
type DirectoryService struct {
	users     directoryUserRepository
	students  directoryStudentRepository
	cache     directoryCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDirectoryService constructs the directory service. cache may be nil.
func NewDirectoryService(users directoryUserRepository, students directoryStudentRepository, cache directoryCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		users:     users,
		students:  students,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

func roleCacheKey(role models.UserRole) string {
	return fmt.Sprintf("directory:role:%s", role)
}

// CreateUser registers a user. Program roles must carry a program.
func (s *DirectoryService) CreateUser(ctx context.Context, req dto.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid create user payload")
	}
	attrs, ok := req.Role.Attributes()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %s", req.Role))
	}
	program := trimmedOrNil(req.Program)
	if attrs.RequiresProgram && program == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("role %s requires a program", req.Role))
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	user := &models.User{
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Name:    strings.TrimSpace(req.Name),
		Role:    req.Role,
		Program: program,
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, roleCacheKey(user.Role)); err != nil {
			s.logger.Warn("failed to invalidate role cache", zap.String("role", string(user.Role)), zap.Error(err))
		}
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// CreateStudent registers a student. NIMs are unique.
func (s *DirectoryService) CreateStudent(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid create student payload")
	}
	nim := strings.TrimSpace(req.NIM)
	exists, err := s.students.ExistsByNIM(ctx, nim)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check nim uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "nim already exists")
	}

	student := &models.Student{
		NIM:     nim,
		Name:    strings.TrimSpace(req.Name),
		Program: strings.TrimSpace(req.Program),
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// GetUsersByRole lists users holding role. The boolean reports a cache hit.
func (s *DirectoryService) GetUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, bool, error) {
	if !role.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %s", role))
	}
	users, hit, err := Remember(ctx, s.cache, roleCacheKey(role), s.cacheTTL, func(ctx context.Context) ([]models.User, error) {
		users, err := s.users.ListByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		if users == nil {
			users = []models.User{}
		}
		return users, nil
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, hit, nil
}

// GetStudents searches students by NIM or name, case-insensitively.
func (s *DirectoryService) GetStudents(ctx context.Context, search string) ([]models.Student, error) {
	students, err := s.students.List(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// GetUserByID returns a user by ID.
func (s *DirectoryService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
