package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/pkg/export"
	"github.com/noah-isme/letter-workflow-api/pkg/storage"
)

var trackingExportColumns = []export.Column{
	{Key: "time", Title: "Time", Weight: 1.4},
	{Key: "actor", Title: "Actor", Weight: 1.6},
	{Key: "action", Title: "Action", Weight: 1.2},
	{Key: "description", Title: "Description", Weight: 2.6},
	{Key: "previous", Title: "Previous", Weight: 1.4},
	{Key: "new", Title: "New", Weight: 1.4},
	{Key: "notes", Title: "Notes", Weight: 2.4},
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportRequestReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LetterRequest, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders a request's tracking history and stores the file
// behind a signed download token.
type ExportService struct {
	requests exportRequestReader
	logs     trackingLogReader
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(requests exportRequestReader, logs trackingLogReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		requests: requests,
		logs:     logs,
		storage:  files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate renders the job's tracking history and stores the result.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("export job is nil")
	}
	request, err := s.requests.FindByID(ctx, nil, job.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load letter request: %w", err)
	}
	logs, err := s.logs.ListByRequest(ctx, job.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load tracking logs: %w", err)
	}
	dataset := buildTrackingDataset(logs)
	title := fmt.Sprintf("Tracking History %s (%s)", request.LetterType, request.Status)

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(buildExportFilename(job, time.Now().UTC()), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Debug("tracking export rendered",
		zap.String("job_id", job.ID),
		zap.String("request_id", job.RequestID),
		zap.Int("entries", len(logs)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.SignedToken, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func buildTrackingDataset(logs []models.TrackingLog) export.Dataset {
	rows := make([]map[string]string, 0, len(logs))
	for _, entry := range logs {
		actor := entry.UserID
		if entry.UserName != nil && *entry.UserName != "" {
			actor = *entry.UserName
			if entry.UserRole != nil {
				actor = fmt.Sprintf("%s (%s)", actor, *entry.UserRole)
			}
		}
		rows = append(rows, map[string]string{
			"time":        entry.CreatedAt.UTC().Format(time.RFC3339),
			"actor":       actor,
			"action":      string(entry.ActionType),
			"description": entry.Description,
			"previous":    statusText(entry.PreviousStatus),
			"new":         statusText(entry.NewStatus),
			"notes":       deref(entry.Notes),
		})
	}
	return export.Dataset{Columns: trackingExportColumns, Rows: rows}
}

func buildExportFilename(job *models.ExportJob, now time.Time) string {
	return fmt.Sprintf("%s/tracking_%s_%s.%s",
		sanitizeFilename(job.RequestID),
		sanitizeFilename(job.ID),
		now.Format("20060102_150405"),
		job.Format,
	)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func statusText(status *models.LetterStatus) string {
	if status == nil {
		return ""
	}
	return string(*status)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
