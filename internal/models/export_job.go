package models

import "time"

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob persisted metadata for an asynchronous tracking history export.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	RequestID    string       `db:"request_id" json:"requestId"`
	Format       ExportFormat `db:"format" json:"format"`
	Status       ExportStatus `db:"status" json:"status"`
	Progress     int          `db:"progress" json:"progress"`
	ResultURL    *string      `db:"result_url" json:"resultUrl,omitempty"`
	CreatedBy    string       `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"errorMessage,omitempty"`
}
