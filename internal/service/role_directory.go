package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
)

// RoleDirectory picks the user responsible for the next workflow step.
// Implementations must be deterministic for a given directory state.
type RoleDirectory interface {
	// FindAny returns a user holding role, or ErrConfigurationMissing.
	FindAny(ctx context.Context, exec sqlx.ExtContext, role models.UserRole) (*models.User, error)
	// FindProgramChair returns the chair of program, or ErrNotFound.
	FindProgramChair(ctx context.Context, exec sqlx.ExtContext, program string) (*models.User, error)
}

type roleLookupRepository interface {
	FindOldestByRole(ctx context.Context, exec sqlx.ExtContext, role models.UserRole) (*models.User, error)
	FindOldestByRoleAndProgram(ctx context.Context, exec sqlx.ExtContext, role models.UserRole, program string) (*models.User, error)
}

// NewRoleDirectory returns the directory implementing policy.
func NewRoleDirectory(policy string, users roleLookupRepository) (RoleDirectory, error) {
	switch policy {
	case "", config.RoutingPolicyOldest:
		return &oldestUserDirectory{users: users}, nil
	default:
		return nil, fmt.Errorf("unknown routing policy %q", policy)
	}
}

// oldestUserDirectory routes to the longest-standing user, ties broken by id.
type oldestUserDirectory struct {
	users roleLookupRepository
}

func (d *oldestUserDirectory) FindAny(ctx context.Context, exec sqlx.ExtContext, role models.UserRole) (*models.User, error) {
	user, err := d.users.FindOldestByRole(ctx, exec, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConfigurationMissing, fmt.Sprintf("no %s user configured", role))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve responsible user")
	}
	return user, nil
}

func (d *oldestUserDirectory) FindProgramChair(ctx context.Context, exec sqlx.ExtContext, program string) (*models.User, error) {
	user, err := d.users.FindOldestByRoleAndProgram(ctx, exec, models.RoleKaprodi, program)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no program chair for program %s", program))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve program chair")
	}
	return user, nil
}
