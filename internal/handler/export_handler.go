package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/internal/service"
	"github.com/noah-isme/letter-workflow-api/pkg/response"
)

type trackingExportService interface {
	CreateJob(ctx context.Context, requestID string, req dto.TrackingExportRequest, actorID string) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes tracking history exports.
type ExportHandler struct {
	service trackingExportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc trackingExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Create godoc
// @Summary Export tracking history
// @Description Queues a CSV or PDF rendering of the request's tracking log
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.TrackingExportRequest true "Format"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /letters/{id}/tracking/export [post]
func (h *ExportHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.TrackingExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/jobs/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download an export
// @Description Signed link; no bearer token required
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", contentTypeFor(download.Format))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, download.Filename, info.ModTime(), download.File)
}

func contentTypeFor(format models.ExportFormat) string {
	switch format {
	case models.ExportFormatPDF:
		return "application/pdf"
	case models.ExportFormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
