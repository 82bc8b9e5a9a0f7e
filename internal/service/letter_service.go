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

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type letterRequestStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, request *models.LetterRequest) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LetterRequest, error)
	UpdateWorkflow(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateWorkflowParams) error
}

type workflowUserReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.User, error)
}

type workflowStudentReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
}

type supportingDocumentWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, doc *models.SupportingDocument) error
}

type trackingLogWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.TrackingLog) error
}

type assignmentMembership interface {
	HasAssignment(ctx context.Context, requestID, userID string) (bool, error)
}

// LetterService owns the request status and handler fields. Every mutation runs
// in one transaction together with its tracking log rows.
type LetterService struct {
	tx          txProvider
	requests    letterRequestStore
	users       workflowUserReader
	students    workflowStudentReader
	documents   supportingDocumentWriter
	logs        trackingLogWriter
	assignments assignmentMembership
	directory   RoleDirectory
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// LetterServiceOption configures optional collaborators.
type LetterServiceOption func(*LetterService)

// WithLetterMetrics records committed transitions.
func WithLetterMetrics(metrics *MetricsService) LetterServiceOption {
	return func(s *LetterService) {
		s.metrics = metrics
	}
}

// WithLetterClock overrides the time source.
func WithLetterClock(now func() time.Time) LetterServiceOption {
	return func(s *LetterService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLetterService wires the lifecycle engine.
func NewLetterService(
	tx txProvider,
	requests letterRequestStore,
	users workflowUserReader,
	students workflowStudentReader,
	documents supportingDocumentWriter,
	logs trackingLogWriter,
	assignments assignmentMembership,
	directory RoleDirectory,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...LetterServiceOption,
) *LetterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LetterService{
		tx:          tx,
		requests:    requests,
		users:       users,
		students:    students,
		documents:   documents,
		logs:        logs,
		assignments: assignments,
		directory:   directory,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateRequest stores a DRAFT request routed to the program chair of the
// student's program.
func (s *LetterService) CreateRequest(ctx context.Context, req dto.CreateLetterRequest, actorID string) (*models.LetterRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid letter request payload")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	var request *models.LetterRequest
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if _, err := s.loadActor(ctx, tx, actorID); err != nil {
			return err
		}
		student, err := s.students.FindByID(ctx, tx, req.StudentID)
		if err != nil {
			return notFoundOrInternal(err, "student not found", "failed to load student")
		}
		chair, err := s.directory.FindProgramChair(ctx, tx, student.Program)
		if err != nil {
			return err
		}

		now := s.now()
		request = &models.LetterRequest{
			StudentID:      student.ID,
			CreatedBy:      actorID,
			LetterType:     strings.TrimSpace(req.LetterType),
			Purpose:        strings.TrimSpace(req.Purpose),
			Priority:       priority,
			Status:         models.StatusDraft,
			CurrentHandler: &chair.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.requests.Create(ctx, tx, request); err != nil {
			return wrapInternal(err, "failed to create letter request")
		}
		for _, doc := range req.Documents {
			if err := s.documents.Create(ctx, tx, &models.SupportingDocument{
				RequestID:  request.ID,
				FileName:   doc.FileName,
				FileURL:    doc.FileURL,
				UploadedBy: actorID,
				UploadedAt: now,
			}); err != nil {
				return wrapInternal(err, "failed to store supporting document")
			}
		}
		return s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:   request.ID,
			UserID:      actorID,
			ActionType:  models.ActionCreated,
			Description: "Letter request created",
			NewStatus:   models.StatusDraft.Ptr(),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(request, models.ActionCreated, "")
	return request, nil
}

// UpdateStatus applies a generic approve/forward/reject style transition.
func (s *LetterService) UpdateStatus(ctx context.Context, requestID string, req dto.UpdateStatusRequest, actorID string) (*models.LetterRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %s", req.Status))
	}

	var (
		request  *models.LetterRequest
		previous models.LetterStatus
	)
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		request, err = s.loadRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		actor, err := s.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if d := canUpdateStatus(actor, request); !d.Allowed {
			return s.denied(d, "only the creator or current handler may update this request", requestID, actorID)
		}
		if request.Status == models.StatusArchived {
			return appErrors.Clone(appErrors.ErrInvalidState, "archived requests cannot change status")
		}

		// Without nextHandler the handler normally stays put, except for
		// TTD_READY, TTD_DONE and ESCALATED: those statuses are always held by
		// one role, so a mismatched handler is replaced by that role's user.
		handler, err := s.resolveNextHandler(ctx, tx, request, req.Status, req.NextHandlerID)
		if err != nil {
			return err
		}

		previous = request.Status
		now := s.now()
		if err := s.applyTransition(ctx, tx, request, repository.UpdateWorkflowParams{
			Status:         req.Status,
			CurrentHandler: handler,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:      request.ID,
			UserID:         actorID,
			ActionType:     req.Status.TrackingAction(),
			Description:    fmt.Sprintf("Status changed from %s to %s", previous, req.Status),
			Notes:          trimmedOrNil(req.Notes),
			PreviousStatus: previous.Ptr(),
			NewStatus:      req.Status.Ptr(),
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(request, req.Status.TrackingAction(), previous)
	return request, nil
}

// UploadFinalLetter attaches the final document and routes the request to the
// dean for signing.
func (s *LetterService) UploadFinalLetter(ctx context.Context, requestID string, req dto.UploadFinalLetterRequest, actorID string) (*models.LetterRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid final letter payload")
	}

	var (
		request  *models.LetterRequest
		previous models.LetterStatus
	)
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		request, err = s.loadRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		actor, err := s.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if d := canUploadFinalLetter(actor, request); !d.Allowed {
			return s.denied(d, "only the current handler may upload the final letter", requestID, actorID)
		}
		if !models.IsProcessedStatus(request.Status) {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("final letter cannot be uploaded while request is %s", request.Status))
		}
		dean, err := s.directory.FindAny(ctx, tx, models.RoleDekan)
		if err != nil {
			return err
		}

		previous = request.Status
		now := s.now()
		fileURL := strings.TrimSpace(req.FileURL)
		if err := s.applyTransition(ctx, tx, request, repository.UpdateWorkflowParams{
			Status:         models.StatusTTDReady,
			CurrentHandler: &dean.ID,
			FinalLetterURL: &fileURL,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:      request.ID,
			UserID:         actorID,
			ActionType:     models.ActionDocumentUploaded,
			Description:    "Final letter uploaded, ready for dean signature",
			PreviousStatus: previous.Ptr(),
			NewStatus:      models.StatusTTDReady.Ptr(),
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(request, models.ActionDocumentUploaded, previous)
	return request, nil
}

// SignLetter records the dean's opaque signature and hands the request to
// faculty staff.
func (s *LetterService) SignLetter(ctx context.Context, requestID string, req dto.SignLetterRequest, actorID string) (*models.LetterRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid signature payload")
	}

	var request *models.LetterRequest
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		request, err = s.loadRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		actor, err := s.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if d := hasRole(actor, models.RoleDekan); !d.Allowed {
			return s.denied(d, "only the dean may sign letters", requestID, actorID)
		}
		if request.Status != models.StatusTTDReady {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("request must be %s to be signed, got %s", models.StatusTTDReady, request.Status))
		}
		if request.FinalLetterURL == nil || strings.TrimSpace(*request.FinalLetterURL) == "" {
			return appErrors.Clone(appErrors.ErrInvalidState, "final letter must be uploaded before signing")
		}
		staff, err := s.directory.FindAny(ctx, tx, models.RoleStaffFakultas)
		if err != nil {
			return err
		}

		now := s.now()
		signature := req.SignatureData
		if err := s.applyTransition(ctx, tx, request, repository.UpdateWorkflowParams{
			Status:         models.StatusTTDDone,
			CurrentHandler: &staff.ID,
			SignatureData:  &signature,
			SignedAt:       &now,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
		if err := s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:      request.ID,
			UserID:         actorID,
			ActionType:     models.ActionSigned,
			Description:    "Letter signed by dean",
			PreviousStatus: models.StatusTTDReady.Ptr(),
			NewStatus:      models.StatusTTDDone.Ptr(),
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:      request.ID,
			UserID:         actorID,
			ActionType:     models.ActionForwarded,
			Description:    fmt.Sprintf("Signed letter forwarded to faculty staff %s", staff.Name),
			PreviousStatus: models.StatusTTDDone.Ptr(),
			NewStatus:      models.StatusTTDDone.Ptr(),
			// sorts after the SIGNED row
			CreatedAt: now.Add(time.Microsecond),
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(request, models.ActionSigned, models.StatusTTDReady)
	return request, nil
}

// UploadSupportingDocument appends a document reference without changing status.
func (s *LetterService) UploadSupportingDocument(ctx context.Context, requestID string, req dto.DocumentInput, actorID string) (*models.SupportingDocument, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid document payload")
	}

	var doc *models.SupportingDocument
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		request, err := s.loadRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		actor, err := s.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if d := canUploadDocument(actor, request); !d.Allowed {
			return s.denied(d, "not allowed to upload documents for this request", requestID, actorID)
		}
		now := s.now()
		doc = &models.SupportingDocument{
			RequestID:  request.ID,
			FileName:   strings.TrimSpace(req.FileName),
			FileURL:    strings.TrimSpace(req.FileURL),
			UploadedBy: actorID,
			UploadedAt: now,
		}
		if err := s.documents.Create(ctx, tx, doc); err != nil {
			return wrapInternal(err, "failed to store supporting document")
		}
		return s.appendLog(ctx, tx, &models.TrackingLog{
			RequestID:   request.ID,
			UserID:      actorID,
			ActionType:  models.ActionDocumentUploaded,
			Description: fmt.Sprintf("Supporting document uploaded: %s", doc.FileName),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// AddTrackingLog appends a manual audit entry such as a note.
func (s *LetterService) AddTrackingLog(ctx context.Context, requestID string, req dto.AddTrackingLogRequest, actorID string) (*models.TrackingLog, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid tracking log payload")
	}
	if !req.ActionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action type %s", req.ActionType))
	}
	for _, status := range []*models.LetterStatus{req.PreviousStatus, req.NewStatus} {
		if status != nil && !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %s", *status))
		}
	}

	request, err := s.loadRequest(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	actor, err := s.loadActor(ctx, nil, actorID)
	if err != nil {
		return nil, err
	}
	var rel requestRelation
	if !isAdmin(actor) && !isParticipant(actor, request) && s.assignments != nil {
		rel.Assignee, err = s.assignments.HasAssignment(ctx, request.ID, actor.ID)
		if err != nil {
			return nil, wrapInternal(err, "failed to check disposition assignment")
		}
	}
	if d := canAddTrackingLog(actor, request, rel); !d.Allowed {
		return nil, s.denied(d, "not allowed to add tracking entries for this request", requestID, actorID)
	}

	entry := &models.TrackingLog{
		RequestID:      request.ID,
		UserID:         actorID,
		ActionType:     req.ActionType,
		Description:    strings.TrimSpace(req.Description),
		Notes:          trimmedOrNil(req.Notes),
		PreviousStatus: req.PreviousStatus,
		NewStatus:      req.NewStatus,
		CreatedAt:      s.now(),
	}
	if err := s.appendLog(ctx, nil, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// resolveNextHandler returns the handler to set for target, or nil to keep the
// current one. Statuses pinned to a role get a handler holding that role.
func (s *LetterService) resolveNextHandler(ctx context.Context, tx *sqlx.Tx, request *models.LetterRequest, target models.LetterStatus, nextHandlerID *string) (*string, error) {
	requiredRole, pinned := target.RequiredHandlerRole()

	if nextHandlerID != nil && strings.TrimSpace(*nextHandlerID) != "" {
		handler, err := s.users.FindByID(ctx, tx, strings.TrimSpace(*nextHandlerID))
		if err != nil {
			return nil, notFoundOrInternal(err, "next handler not found", "failed to load next handler")
		}
		if pinned && handler.Role != requiredRole {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("status %s requires a %s handler", target, requiredRole))
		}
		return &handler.ID, nil
	}

	if !pinned {
		return nil, nil
	}
	if request.CurrentHandler != nil {
		current, err := s.users.FindByID(ctx, tx, *request.CurrentHandler)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, wrapInternal(err, "failed to load current handler")
		}
		if current != nil && current.Role == requiredRole {
			return nil, nil
		}
	}
	handler, err := s.directory.FindAny(ctx, tx, requiredRole)
	if err != nil {
		return nil, err
	}
	return &handler.ID, nil
}

// applyTransition persists params against request, guarding on its current
// status, and mirrors the change onto request.
func (s *LetterService) applyTransition(ctx context.Context, tx *sqlx.Tx, request *models.LetterRequest, params repository.UpdateWorkflowParams) error {
	return applyWorkflowUpdate(ctx, s.requests, tx, request, params)
}

func (s *LetterService) appendLog(ctx context.Context, exec sqlx.ExtContext, entry *models.TrackingLog) error {
	if err := s.logs.Create(ctx, exec, entry); err != nil {
		return wrapInternal(err, "failed to write tracking log")
	}
	return nil
}

func (s *LetterService) loadRequest(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LetterRequest, error) {
	request, err := s.requests.FindByID(ctx, exec, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "letter request not found", "failed to load letter request")
	}
	return request, nil
}

func (s *LetterService) loadActor(ctx context.Context, exec sqlx.ExtContext, id string) (*models.User, error) {
	return loadActor(ctx, s.users, exec, id)
}

func (s *LetterService) denied(d Decision, message, requestID, actorID string) error {
	s.logger.Debug("letter operation denied",
		zap.String("request_id", requestID),
		zap.String("actor_id", actorID),
		zap.String("reason", string(d.Reason)),
	)
	return appErrors.Clone(appErrors.ErrForbidden, message)
}

func (s *LetterService) recordTransition(request *models.LetterRequest, action models.TrackingAction, previous models.LetterStatus) {
	s.metrics.RecordTransition(action, request.Status)
	s.logger.Info("letter request transitioned",
		zap.String("request_id", request.ID),
		zap.String("action", string(action)),
		zap.String("from", string(previous)),
		zap.String("to", string(request.Status)),
	)
}

func applyWorkflowUpdate(ctx context.Context, requests letterRequestStore, tx *sqlx.Tx, request *models.LetterRequest, params repository.UpdateWorkflowParams) error {
	params.ID = request.ID
	params.ExpectedStatus = request.Status
	if err := requests.UpdateWorkflow(ctx, tx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "letter request was modified concurrently")
		}
		return wrapInternal(err, "failed to update letter request")
	}
	request.Status = params.Status
	request.UpdatedAt = params.UpdatedAt
	if params.CurrentHandler != nil {
		request.CurrentHandler = params.CurrentHandler
	}
	if params.DekanInstructions != nil {
		request.DekanInstructions = params.DekanInstructions
	}
	if params.FinalLetterURL != nil {
		request.FinalLetterURL = params.FinalLetterURL
	}
	if params.SignatureData != nil {
		request.SignatureData = params.SignatureData
	}
	if params.SignedAt != nil {
		request.SignedAt = params.SignedAt
	}
	return nil
}

func loadActor(ctx context.Context, users workflowUserReader, exec sqlx.ExtContext, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "acting user is required")
	}
	actor, err := users.FindByID(ctx, exec, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "acting user not found", "failed to load acting user")
	}
	return actor, nil
}

// runInTx commits when fn succeeds and rolls back otherwise.
func runInTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func notFoundOrInternal(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return wrapInternal(err, internal)
}

// wrapInternal passes typed errors through untouched.
func wrapInternal(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
