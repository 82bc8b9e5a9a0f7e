package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
)

const (
	defaultLetterPageSize = 50
	maxLetterPageSize     = 200
)

type letterRequestReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LetterRequest, error)
	List(ctx context.Context, filter models.LetterRequestFilter) ([]models.LetterRequest, int, error)
}

type trackingLogReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]models.TrackingLog, error)
}

type supportingDocumentReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]models.SupportingDocument, error)
}

type dispositionReader interface {
	ListByRequest(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]models.DispositionAssignment, error)
	HasAssignment(ctx context.Context, requestID, userID string) (bool, error)
}

// LetterQueryService serves the read paths. Denied and missing lookups both
// degrade to an empty result; the distinction is only logged.
type LetterQueryService struct {
	requests     letterRequestReader
	users        workflowUserReader
	students     workflowStudentReader
	logs         trackingLogReader
	documents    supportingDocumentReader
	dispositions dispositionReader
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewLetterQueryService constructs the read service.
func NewLetterQueryService(
	requests letterRequestReader,
	users workflowUserReader,
	students workflowStudentReader,
	logs trackingLogReader,
	documents supportingDocumentReader,
	dispositions dispositionReader,
	metrics *MetricsService,
	logger *zap.Logger,
) *LetterQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LetterQueryService{
		requests:     requests,
		users:        users,
		students:     students,
		logs:         logs,
		documents:    documents,
		dispositions: dispositions,
		metrics:      metrics,
		logger:       logger,
	}
}

// GetRequests lists requests visible to actorID. An empty actorID lists
// without any role scope.
func (s *LetterQueryService) GetRequests(ctx context.Context, query dto.LetterQuery, actorID string) (*dto.LetterListResponse, error) {
	filter, err := buildLetterFilter(query)
	if err != nil {
		return nil, err
	}
	response := &dto.LetterListResponse{Items: []models.LetterRequest{}, Limit: filter.Limit, Offset: filter.Offset}

	if actorID != "" {
		actor, err := s.findActor(ctx, actorID)
		if err != nil {
			return nil, err
		}
		scoped, ok := listScope(actor, filter)
		if !ok {
			s.logger.Debug("letter listing forced empty", zap.String("actor_id", actorID))
			return response, nil
		}
		filter = scoped
	}

	start := time.Now()
	items, total, err := s.requests.List(ctx, filter)
	s.metrics.ObserveDBQuery("letters.list", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list letter requests")
	}
	if items != nil {
		response.Items = items
	}
	response.Total = total
	return response, nil
}

// GetRequestByID returns the request or nil when it is missing or hidden.
func (s *LetterQueryService) GetRequestByID(ctx context.Context, requestID, actorID string) (*models.LetterRequest, error) {
	request, actor, err := s.loadForRead(ctx, requestID, actorID)
	if err != nil || request == nil {
		return nil, err
	}
	if actorID != "" {
		if d := canViewRequest(actor, request); !d.Allowed {
			s.logDenied("request", requestID, actorID, d)
			return nil, nil
		}
	}
	return request, nil
}

// GetSupportingDocuments returns the documents of a visible request.
func (s *LetterQueryService) GetSupportingDocuments(ctx context.Context, requestID, actorID string) ([]models.SupportingDocument, error) {
	request, actor, err := s.loadForRead(ctx, requestID, actorID)
	if err != nil || request == nil {
		return []models.SupportingDocument{}, err
	}
	if actorID != "" {
		if d := canViewRequest(actor, request); !d.Allowed {
			s.logDenied("documents", requestID, actorID, d)
			return []models.SupportingDocument{}, nil
		}
	}
	docs, err := s.documents.ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list supporting documents")
	}
	if docs == nil {
		docs = []models.SupportingDocument{}
	}
	return docs, nil
}

// GetTrackingLogs returns the complete chronological history of a visible request.
func (s *LetterQueryService) GetTrackingLogs(ctx context.Context, requestID, actorID string) ([]models.TrackingLog, error) {
	request, actor, err := s.loadForRead(ctx, requestID, actorID)
	if err != nil || request == nil {
		return []models.TrackingLog{}, err
	}
	if actorID != "" {
		allowed, err := s.CanViewTrackingLogs(ctx, request, actor)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return []models.TrackingLog{}, nil
		}
	}
	logs, err := s.logs.ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tracking logs")
	}
	if logs == nil {
		logs = []models.TrackingLog{}
	}
	return logs, nil
}

// GetDispositionAssignments returns the assignments of a visible request in
// sequence order.
func (s *LetterQueryService) GetDispositionAssignments(ctx context.Context, requestID, actorID string) ([]models.DispositionAssignment, error) {
	request, actor, err := s.loadForRead(ctx, requestID, actorID)
	if err != nil || request == nil {
		return []models.DispositionAssignment{}, err
	}
	if actorID != "" {
		rel, err := s.relation(ctx, request, actor, false)
		if err != nil {
			return nil, err
		}
		if d := canViewDispositions(actor, request, rel); !d.Allowed {
			s.logDenied("dispositions", requestID, actorID, d)
			return []models.DispositionAssignment{}, nil
		}
	}
	assignments, err := s.dispositions.ListByRequest(ctx, nil, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list disposition assignments")
	}
	if assignments == nil {
		assignments = []models.DispositionAssignment{}
	}
	return assignments, nil
}

// CanViewTrackingLogs reports whether actor may read the history of request.
// The export pipeline reuses it.
func (s *LetterQueryService) CanViewTrackingLogs(ctx context.Context, request *models.LetterRequest, actor *models.User) (bool, error) {
	rel, err := s.relation(ctx, request, actor, true)
	if err != nil {
		return false, err
	}
	if d := canViewTrackingLogs(actor, request, rel); !d.Allowed {
		s.logDenied("tracking", request.ID, actorIDOf(actor), d)
		return false, nil
	}
	return true, nil
}

// relation collects the store-backed facts a permission check needs. Lookups
// are skipped when the actor is already allowed as admin or participant.
func (s *LetterQueryService) relation(ctx context.Context, request *models.LetterRequest, actor *models.User, withProgram bool) (requestRelation, error) {
	var rel requestRelation
	if actor == nil || isAdmin(actor) || isParticipant(actor, request) {
		return rel, nil
	}
	assignee, err := s.dispositions.HasAssignment(ctx, request.ID, actor.ID)
	if err != nil {
		return rel, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check disposition assignment")
	}
	rel.Assignee = assignee
	if withProgram && !assignee {
		student, err := s.students.FindByID(ctx, nil, request.StudentID)
		switch {
		case err == nil:
			rel.StudentProgram = student.Program
		case !errors.Is(err, sql.ErrNoRows):
			return rel, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
	}
	return rel, nil
}

// loadForRead returns a nil request when it does not exist. The actor is nil
// when actorID is empty or unknown.
func (s *LetterQueryService) loadForRead(ctx context.Context, requestID, actorID string) (*models.LetterRequest, *models.User, error) {
	request, err := s.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("letter request not found", zap.String("request_id", requestID))
			return nil, nil, nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load letter request")
	}
	if actorID == "" {
		return request, nil, nil
	}
	actor, err := s.findActor(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	return request, actor, nil
}

func (s *LetterQueryService) findActor(ctx context.Context, actorID string) (*models.User, error) {
	actor, err := s.users.FindByID(ctx, nil, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load acting user")
	}
	return actor, nil
}

func (s *LetterQueryService) logDenied(resource, requestID, actorID string, d Decision) {
	s.logger.Debug("read access denied",
		zap.String("resource", resource),
		zap.String("request_id", requestID),
		zap.String("actor_id", actorID),
		zap.String("reason", string(d.Reason)),
	)
}

func actorIDOf(actor *models.User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}

func buildLetterFilter(query dto.LetterQuery) (models.LetterRequestFilter, error) {
	filter := models.LetterRequestFilter{
		Status:         query.Status,
		Priority:       query.Priority,
		StudentNIM:     strings.TrimSpace(query.NIM),
		CreatedBy:      strings.TrimSpace(query.CreatedBy),
		CurrentHandler: strings.TrimSpace(query.Handler),
		Limit:          query.Limit,
		Offset:         query.Offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %s", filter.Status))
	}
	if filter.Priority != "" && filter.Priority != models.PriorityNormal && filter.Priority != models.PriorityUrgent {
		return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %s", filter.Priority))
	}
	var err error
	if filter.CreatedFrom, err = parseFilterTime(query.From, false); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseFilterTime(query.To, true); err != nil {
		return filter, err
	}
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedTo.Before(*filter.CreatedFrom) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLetterPageSize
	}
	if filter.Limit > maxLetterPageSize {
		filter.Limit = maxLetterPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter, nil
}

// parseFilterTime accepts RFC3339 or a plain date. A plain upper bound covers
// the whole day.
func parseFilterTime(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q", value))
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}
