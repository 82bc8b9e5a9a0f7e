package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
	"github.com/noah-isme/letter-workflow-api/pkg/jobs"
	"github.com/noah-isme/letter-workflow-api/pkg/storage"
)

// TrackingExportJobType labels export jobs on the shared queue.
const TrackingExportJobType = "tracking_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

type exportFileStore interface {
	ParseToken(token string, allowExpired bool) (storage.SignedToken, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	Cleanup(ttl time.Duration) ([]string, error)
}

type trackingVisibility interface {
	CanViewTrackingLogs(ctx context.Context, request *models.LetterRequest, actor *models.User) (bool, error)
}

// TrackingExportConfig governs queue recovery and cleanup.
type TrackingExportConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// TrackingExportService manages the lifecycle of tracking history exports.
type TrackingExportService struct {
	repo       exportJobStore
	requests   letterRequestReader
	users      workflowUserReader
	visibility trackingVisibility
	queue      jobDispatcher
	files      exportFileStore
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        TrackingExportConfig
}

// NewTrackingExportService constructs the export service.
func NewTrackingExportService(
	repo exportJobStore,
	requests letterRequestReader,
	users workflowUserReader,
	visibility trackingVisibility,
	queue jobDispatcher,
	files exportFileStore,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TrackingExportConfig,
) *TrackingExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &TrackingExportService{
		repo:       repo,
		requests:   requests,
		users:      users,
		visibility: visibility,
		queue:      queue,
		files:      files,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// CreateJob persists a QUEUED export of the request's history and enqueues it.
// The actor must be allowed to read the tracking logs.
func (s *TrackingExportService) CreateJob(ctx context.Context, requestID string, req dto.TrackingExportRequest, actorID string) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid export payload")
	}
	request, err := s.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		return nil, notFoundOrInternal(err, "letter request not found", "failed to load letter request")
	}
	actor, err := loadActor(ctx, s.users, nil, actorID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.visibility.CanViewTrackingLogs(ctx, request, actor)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to export this request's history")
	}

	job := &models.ExportJob{
		RequestID: request.ID,
		Format:    req.Format,
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: TrackingExportJobType}); err != nil {
		status := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to its creator and to admins.
func (s *TrackingExportService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}
	resp := &dto.ExportStatusResponse{
		ID:        job.ID,
		RequestID: job.RequestID,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *TrackingExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	parsed, err := s.files.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, parsed.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.files.Open(parsed.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(parsed.Path),
		Format:    job.Format,
		ExpiresAt: parsed.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *TrackingExportService) RecoverPendingJobs(ctx context.Context) int {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return 0
	}
	recovered := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: TrackingExportJobType}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending export", "job_id", job.ID, "error", err)
			continue
		}
		recovered++
	}
	return recovered
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *TrackingExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes files of jobs finished longer than the result TTL ago.
func (s *TrackingExportService) CleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Sugar().Warnw("export cleanup list failed", "error", err)
		return
	}
	for _, job := range expired {
		if job.ResultURL == nil {
			continue
		}
		token := extractToken(*job.ResultURL)
		if token == "" {
			continue
		}
		parsed, err := s.files.ParseToken(token, true)
		if err != nil {
			continue
		}
		if err := s.files.Delete(parsed.Path); err != nil {
			s.logger.Sugar().Warnw("export cleanup delete failed", "job_id", job.ID, "error", err)
		}
	}
	if _, err := s.files.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("export filesystem cleanup failed", "error", err)
	}
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ExportWorker bridges queue jobs to ExportService.
type ExportWorker struct {
	repo       exportJobStore
	exporter   exportGenerator
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, exporter exportGenerator, metrics *MetricsService, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExportWorker{
		repo:       repo,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job. Failures below the retry budget return the job
// to QUEUED so the queue can retry it.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.ExportStatusFinished {
		return nil
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.ExportStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark export failed", "job_id", job.ID, "error", updateErr)
			}
			w.metrics.RecordExportJob(models.ExportStatusFailed)
		} else {
			queued := models.ExportStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark export queued", "job_id", job.ID, "error", updateErr)
			}
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	noError := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark export finished", "job_id", job.ID, "error", err)
		return err
	}
	w.metrics.RecordExportJob(models.ExportStatusFinished)
	w.logger.Info("tracking export finished", zap.String("job_id", job.ID), zap.String("format", string(record.Format)))
	return nil
}
