package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
	"github.com/noah-isme/letter-workflow-api/pkg/response"
)

type letterCommands interface {
	CreateRequest(ctx context.Context, req dto.CreateLetterRequest, actorID string) (*models.LetterRequest, error)
	UpdateStatus(ctx context.Context, requestID string, req dto.UpdateStatusRequest, actorID string) (*models.LetterRequest, error)
	UploadFinalLetter(ctx context.Context, requestID string, req dto.UploadFinalLetterRequest, actorID string) (*models.LetterRequest, error)
	SignLetter(ctx context.Context, requestID string, req dto.SignLetterRequest, actorID string) (*models.LetterRequest, error)
	UploadSupportingDocument(ctx context.Context, requestID string, req dto.DocumentInput, actorID string) (*models.SupportingDocument, error)
	AddTrackingLog(ctx context.Context, requestID string, req dto.AddTrackingLogRequest, actorID string) (*models.TrackingLog, error)
}

type letterQueries interface {
	GetRequests(ctx context.Context, query dto.LetterQuery, actorID string) (*dto.LetterListResponse, error)
	GetRequestByID(ctx context.Context, requestID, actorID string) (*models.LetterRequest, error)
	GetSupportingDocuments(ctx context.Context, requestID, actorID string) ([]models.SupportingDocument, error)
	GetTrackingLogs(ctx context.Context, requestID, actorID string) ([]models.TrackingLog, error)
	GetDispositionAssignments(ctx context.Context, requestID, actorID string) ([]models.DispositionAssignment, error)
}

// LetterHandler exposes the letter request lifecycle.
type LetterHandler struct {
	commands letterCommands
	queries  letterQueries
}

// NewLetterHandler constructs a letter handler.
func NewLetterHandler(commands letterCommands, queries letterQueries) *LetterHandler {
	return &LetterHandler{commands: commands, queries: queries}
}

// Create godoc
// @Summary Create letter request
// @Description Creates a DRAFT request and routes it to the student's program chair
// @Tags Letters
// @Accept json
// @Produce json
// @Param payload body dto.CreateLetterRequest true "Letter request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /letters [post]
func (h *LetterHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateLetterRequest
	if !bindJSON(c, &req, "invalid letter request payload") {
		return
	}
	created, err := h.commands.CreateRequest(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List letter requests
// @Description Requests visible to the caller, newest first
// @Tags Letters
// @Produce json
// @Param status query string false "Status"
// @Param priority query string false "Priority"
// @Param nim query string false "Student NIM"
// @Param createdBy query string false "Creator user ID"
// @Param handler query string false "Current handler user ID"
// @Param from query string false "Created from (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "Created to (RFC3339 or YYYY-MM-DD)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /letters [get]
func (h *LetterHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	query := dto.LetterQuery{
		Status:    models.LetterStatus(c.Query("status")),
		Priority:  models.LetterPriority(c.Query("priority")),
		NIM:       c.Query("nim"),
		CreatedBy: c.Query("createdBy"),
		Handler:   c.Query("handler"),
		From:      c.Query("from"),
		To:        c.Query("to"),
		Limit:     limit,
		Offset:    offset,
	}
	page, err := h.queries.GetRequests(c.Request.Context(), query, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	pageSize := page.Limit
	if pageSize <= 0 {
		pageSize = 1
	}
	pagination := &models.Pagination{
		Page:       page.Offset/pageSize + 1,
		PageSize:   page.Limit,
		TotalCount: page.Total,
	}
	response.JSON(c, http.StatusOK, page.Items, pagination)
}

// Get godoc
// @Summary Get letter request
// @Tags Letters
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /letters/{id} [get]
func (h *LetterHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	request, err := h.queries.GetRequestByID(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if request == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "letter request not found"))
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// UpdateStatus godoc
// @Summary Transition a letter request
// @Description Moves the request to a new status and records the tracking log
// @Tags Letters
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateStatusRequest true "Transition"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /letters/{id}/status [patch]
func (h *LetterHandler) UpdateStatus(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UpdateStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	updated, err := h.commands.UpdateStatus(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// UploadFinalLetter godoc
// @Summary Attach the final letter
// @Tags Letters
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UploadFinalLetterRequest true "Final letter"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /letters/{id}/final-letter [post]
func (h *LetterHandler) UploadFinalLetter(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UploadFinalLetterRequest
	if !bindJSON(c, &req, "invalid final letter payload") {
		return
	}
	updated, err := h.commands.UploadFinalLetter(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Sign godoc
// @Summary Sign a letter
// @Description Dean signature; returns the request to the program staff
// @Tags Letters
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.SignLetterRequest true "Signature"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /letters/{id}/sign [post]
func (h *LetterHandler) Sign(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.SignLetterRequest
	if !bindJSON(c, &req, "invalid signature payload") {
		return
	}
	updated, err := h.commands.SignLetter(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// UploadDocument godoc
// @Summary Attach a supporting document
// @Tags Letters
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DocumentInput true "Document"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /letters/{id}/documents [post]
func (h *LetterHandler) UploadDocument(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.DocumentInput
	if !bindJSON(c, &req, "invalid document payload") {
		return
	}
	doc, err := h.commands.UploadSupportingDocument(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// ListDocuments godoc
// @Summary List supporting documents
// @Tags Letters
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /letters/{id}/documents [get]
func (h *LetterHandler) ListDocuments(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	docs, err := h.queries.GetSupportingDocuments(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// AddTrackingLog godoc
// @Summary Append a tracking entry
// @Tags Tracking
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AddTrackingLogRequest true "Entry"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /letters/{id}/tracking [post]
func (h *LetterHandler) AddTrackingLog(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.AddTrackingLogRequest
	if !bindJSON(c, &req, "invalid tracking payload") {
		return
	}
	entry, err := h.commands.AddTrackingLog(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// ListTrackingLogs godoc
// @Summary Tracking history
// @Description Entries oldest first; empty when the caller may not see them
// @Tags Tracking
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /letters/{id}/tracking [get]
func (h *LetterHandler) ListTrackingLogs(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	logs, err := h.queries.GetTrackingLogs(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
