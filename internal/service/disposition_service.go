package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
)

type dispositionStore interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.DispositionAssignment) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.DispositionAssignment, error)
	ListByRequest(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]models.DispositionAssignment, error)
	MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, completedAt time.Time, notes *string) error
}

// DispositionService schedules and advances the dean's ordered officer steps.
// At most one assignment per request is active: the open one with the lowest
// sequence, whose assignee is the current handler.
type DispositionService struct {
	tx           txProvider
	requests     letterRequestStore
	users        workflowUserReader
	dispositions dispositionStore
	logs         trackingLogWriter
	directory    RoleDirectory
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// DispositionServiceOption configures optional collaborators.
type DispositionServiceOption func(*DispositionService)

// WithDispositionMetrics records completed assignments and transitions.
func WithDispositionMetrics(metrics *MetricsService) DispositionServiceOption {
	return func(s *DispositionService) {
		s.metrics = metrics
	}
}

// WithDispositionClock overrides the time source.
func WithDispositionClock(now func() time.Time) DispositionServiceOption {
	return func(s *DispositionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDispositionService constructs the scheduler.
func NewDispositionService(
	tx txProvider,
	requests letterRequestStore,
	users workflowUserReader,
	dispositions dispositionStore,
	logs trackingLogWriter,
	directory RoleDirectory,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...DispositionServiceOption,
) *DispositionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DispositionService{
		tx:           tx,
		requests:     requests,
		users:        users,
		dispositions: dispositions,
		logs:         logs,
		directory:    directory,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateDisposition lets the dean route a FORWARDED_TO_DEKAN request through an
// ordered list of officers. The first assignee becomes the handler.
func (s *DispositionService) CreateDisposition(ctx context.Context, requestID string, req dto.CreateDispositionRequest, actorID string) ([]models.DispositionAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid disposition payload")
	}
	seen := make(map[int]struct{}, len(req.Assignments))
	for _, item := range req.Assignments {
		if _, dup := seen[item.OrderSequence]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate order sequence %d", item.OrderSequence))
		}
		seen[item.OrderSequence] = struct{}{}
	}

	var (
		request     *models.LetterRequest
		assignments []models.DispositionAssignment
	)
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		request, err = s.requests.FindByID(ctx, tx, requestID)
		if err != nil {
			return notFoundOrInternal(err, "letter request not found", "failed to load letter request")
		}
		actor, err := loadActor(ctx, s.users, tx, actorID)
		if err != nil {
			return err
		}
		if d := hasRole(actor, models.RoleDekan); !d.Allowed {
			s.logger.Debug("disposition denied", zap.String("request_id", requestID), zap.String("actor_id", actorID), zap.String("reason", string(d.Reason)))
			return appErrors.Clone(appErrors.ErrForbidden, "only the dean may create dispositions")
		}
		if request.Status != models.StatusForwardedToDekan {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("request must be %s to be disposed, got %s", models.StatusForwardedToDekan, request.Status))
		}

		// A request returned for coordination keeps its earlier rows; a new
		// round continues the numbering after them.
		existing, err := s.dispositions.ListByRequest(ctx, tx, request.ID)
		if err != nil {
			return wrapInternal(err, "failed to load disposition assignments")
		}
		if last := maxOrderSequence(existing); last > 0 {
			for _, item := range req.Assignments {
				if item.OrderSequence <= last {
					return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("order sequence %d must be greater than %d", item.OrderSequence, last))
				}
			}
		}

		ordered := make([]dto.DispositionAssignmentInput, len(req.Assignments))
		copy(ordered, req.Assignments)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].OrderSequence < ordered[j].OrderSequence })

		assignees := make([]*models.User, len(ordered))
		for i, item := range ordered {
			user, err := s.users.FindByID(ctx, tx, item.UserID)
			if err != nil {
				return notFoundOrInternal(err, fmt.Sprintf("assignee %s not found", item.UserID), "failed to load assignee")
			}
			assignees[i] = user
		}
		attrs, _ := assignees[0].Role.Attributes()
		if attrs.DispositionStatus == "" {
			return appErrors.Clone(appErrors.ErrConfigurationMissing, fmt.Sprintf("role %s has no disposition status", assignees[0].Role))
		}

		now := s.now()
		instructions := strings.TrimSpace(req.Instructions)
		assignments = make([]models.DispositionAssignment, len(ordered))
		for i, item := range ordered {
			name := assignees[i].Name
			role := assignees[i].Role
			assignments[i] = models.DispositionAssignment{
				RequestID:     request.ID,
				AssignedTo:    assignees[i].ID,
				AssignedBy:    actorID,
				Instructions:  instructions,
				OrderSequence: item.OrderSequence,
				CreatedAt:     now,
				AssigneeName:  &name,
				AssigneeRole:  &role,
			}
		}
		if err := s.dispositions.CreateBatch(ctx, tx, assignments); err != nil {
			return wrapInternal(err, "failed to create disposition assignments")
		}

		first := assignees[0]
		if err := applyWorkflowUpdate(ctx, s.requests, tx, request, repository.UpdateWorkflowParams{
			Status:            attrs.DispositionStatus,
			CurrentHandler:    &first.ID,
			DekanInstructions: &instructions,
			UpdatedAt:         now,
		}); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:      request.ID,
			UserID:         actorID,
			ActionType:     models.ActionDisposisiAssigned,
			Description:    fmt.Sprintf("Disposition assigned to %d officer(s), starting with %s", len(assignments), first.Name),
			Notes:          &instructions,
			PreviousStatus: models.StatusForwardedToDekan.Ptr(),
			NewStatus:      attrs.DispositionStatus.Ptr(),
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(models.ActionDisposisiAssigned, request.Status)
	s.logger.Info("disposition created",
		zap.String("request_id", request.ID),
		zap.Int("assignments", len(assignments)),
		zap.String("status", string(request.Status)),
	)
	return assignments, nil
}

// ProcessDisposition completes the actor's open assignment and advances the
// request. Missing, foreign, completed and out-of-turn assignments all fail
// with NotFound.
func (s *DispositionService) ProcessDisposition(ctx context.Context, assignmentID string, req dto.ProcessDispositionRequest, actorID string) (*models.DispositionAssignment, error) {
	var (
		assignment *models.DispositionAssignment
		request    *models.LetterRequest
		action     models.TrackingAction
	)
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		assignment, err = s.dispositions.FindByID(ctx, tx, assignmentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return wrapInternal(err, "failed to load disposition assignment")
		}
		if reason := assignmentUnavailable(assignment, actorID); reason != "" {
			s.logger.Debug("disposition assignment unavailable",
				zap.String("assignment_id", assignmentID),
				zap.String("actor_id", actorID),
				zap.String("reason", reason),
			)
			return appErrors.Clone(appErrors.ErrNotFound, "disposition assignment not found")
		}

		request, err = s.requests.FindByID(ctx, tx, assignment.RequestID)
		if err != nil {
			return notFoundOrInternal(err, "letter request not found", "failed to load letter request")
		}
		siblings, err := s.dispositions.ListByRequest(ctx, tx, request.ID)
		if err != nil {
			return wrapInternal(err, "failed to load disposition assignments")
		}
		if reason := stepInactive(request, siblings, assignment, actorID); reason != "" {
			s.logger.Debug("disposition assignment inactive",
				zap.String("assignment_id", assignmentID),
				zap.String("actor_id", actorID),
				zap.String("status", string(request.Status)),
				zap.String("reason", reason),
			)
			return appErrors.Clone(appErrors.ErrNotFound, "disposition assignment not found")
		}

		now := s.now()
		notes := trimmedOrNil(req.Notes)
		if err := s.dispositions.MarkCompleted(ctx, tx, assignment.ID, now, notes); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Debug("disposition assignment completed concurrently", zap.String("assignment_id", assignmentID))
				return appErrors.Clone(appErrors.ErrNotFound, "disposition assignment not found")
			}
			return wrapInternal(err, "failed to complete disposition assignment")
		}
		assignment.IsCompleted = true
		assignment.CompletedAt = &now
		assignment.Notes = notes

		previous := request.Status

		var (
			target      = request.Status
			handler     *string
			description string
		)
		switch {
		case req.Escalate:
			admin, err := s.directory.FindAny(ctx, tx, models.RoleAdmin)
			if err != nil {
				return err
			}
			target, handler = models.StatusEscalated, &admin.ID
			action, description = models.ActionEscalated, "Request escalated to admin"
		case req.FlagForCoordination:
			dean, err := s.directory.FindAny(ctx, tx, models.RoleDekan)
			if err != nil {
				return err
			}
			target, handler = models.StatusForwardedToDekan, &dean.ID
			action, description = models.ActionProcessed, "Request flagged for dean coordination"
		default:
			action = models.ActionProcessed
			if next := nextAssignment(siblings, assignment); next != nil {
				handler = &next.AssignedTo
				description = "Disposition assignment completed"
			} else {
				dean, err := s.directory.FindAny(ctx, tx, models.RoleDekan)
				if err != nil {
					return err
				}
				target, handler = models.StatusTTDReady, &dean.ID
				description = "All disposition assignments completed, ready for signing"
			}
		}

		if err := applyWorkflowUpdate(ctx, s.requests, tx, request, repository.UpdateWorkflowParams{
			Status:         target,
			CurrentHandler: handler,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:      request.ID,
			UserID:         actorID,
			ActionType:     action,
			Description:    description,
			Notes:          notes,
			PreviousStatus: previous.Ptr(),
			NewStatus:      target.Ptr(),
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDispositionCompleted()
	s.metrics.RecordTransition(action, request.Status)
	s.logger.Info("disposition assignment processed",
		zap.String("assignment_id", assignment.ID),
		zap.String("request_id", request.ID),
		zap.String("status", string(request.Status)),
	)
	return assignment, nil
}

func (s *DispositionService) appendLog(ctx context.Context, tx *sqlx.Tx, entry *models.TrackingLog) error {
	if err := s.logs.Create(ctx, tx, entry); err != nil {
		return wrapInternal(err, "failed to write tracking log")
	}
	return nil
}

// assignmentUnavailable returns why actorID cannot process assignment, or "".
func assignmentUnavailable(assignment *models.DispositionAssignment, actorID string) string {
	switch {
	case assignment == nil:
		return string(DenyNotFound)
	case assignment.AssignedTo != actorID:
		return string(DenyNotParticipant)
	case assignment.IsCompleted:
		return "already_completed"
	default:
		return ""
	}
}

// stepInactive returns why assignment is not the request's active step, or "".
// Escalation and coordination leave the request outside the disposition
// statuses, so rows they bypassed stay closed to processing.
func stepInactive(request *models.LetterRequest, assignments []models.DispositionAssignment, assignment *models.DispositionAssignment, actorID string) string {
	switch {
	case !models.InDisposition(request.Status):
		return "sequence_closed"
	case !request.HandledBy(actorID):
		return "not_current_handler"
	}
	if active := activeAssignment(assignments); active == nil || active.ID != assignment.ID {
		return "out_of_order"
	}
	return ""
}

// activeAssignment returns the open assignment with the lowest sequence among
// the latest round. Rows created before that round were bypassed.
func activeAssignment(assignments []models.DispositionAssignment) *models.DispositionAssignment {
	var latest time.Time
	for _, a := range assignments {
		if a.CreatedAt.After(latest) {
			latest = a.CreatedAt
		}
	}
	var active *models.DispositionAssignment
	for i := range assignments {
		candidate := &assignments[i]
		if candidate.IsCompleted || candidate.CreatedAt.Before(latest) {
			continue
		}
		if active == nil || candidate.OrderSequence < active.OrderSequence {
			active = candidate
		}
	}
	return active
}

func maxOrderSequence(assignments []models.DispositionAssignment) int {
	last := 0
	for _, a := range assignments {
		if a.OrderSequence > last {
			last = a.OrderSequence
		}
	}
	return last
}

// nextAssignment returns the open assignment with the smallest sequence strictly
// greater than current's, or nil when current was the last step.
func nextAssignment(assignments []models.DispositionAssignment, current *models.DispositionAssignment) *models.DispositionAssignment {
	var next *models.DispositionAssignment
	for i := range assignments {
		candidate := &assignments[i]
		if candidate.ID == current.ID || candidate.IsCompleted || candidate.OrderSequence <= current.OrderSequence {
			continue
		}
		if next == nil || candidate.OrderSequence < next.OrderSequence {
			next = candidate
		}
	}
	return next
}
