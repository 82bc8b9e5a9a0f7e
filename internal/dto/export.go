package dto

import "github.com/noah-isme/letter-workflow-api/internal/models"

// TrackingExportRequest payload for POST /letters/:id/tracking/export.
type TrackingExportRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	RequestID string              `json:"requestId"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
