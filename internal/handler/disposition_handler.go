package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/pkg/response"
)

type dispositionCommands interface {
	CreateDisposition(ctx context.Context, requestID string, req dto.CreateDispositionRequest, actorID string) ([]models.DispositionAssignment, error)
	ProcessDisposition(ctx context.Context, assignmentID string, req dto.ProcessDispositionRequest, actorID string) (*models.DispositionAssignment, error)
}

type dispositionQueries interface {
	GetDispositionAssignments(ctx context.Context, requestID, actorID string) ([]models.DispositionAssignment, error)
}

// DispositionHandler exposes dean dispositions and officer processing.
type DispositionHandler struct {
	commands dispositionCommands
	queries  dispositionQueries
}

// NewDispositionHandler constructs the handler.
func NewDispositionHandler(commands dispositionCommands, queries dispositionQueries) *DispositionHandler {
	return &DispositionHandler{commands: commands, queries: queries}
}

// Create godoc
// @Summary Dispose a request to officers
// @Description Dean schedules ordered officer assignments for a FORWARDED_TO_DEKAN request
// @Tags Dispositions
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CreateDispositionRequest true "Disposition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /letters/{id}/dispositions [post]
func (h *DispositionHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateDispositionRequest
	if !bindJSON(c, &req, "invalid disposition payload") {
		return
	}
	assignments, err := h.commands.CreateDisposition(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignments)
}

// List godoc
// @Summary Disposition assignments of a request
// @Tags Dispositions
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /letters/{id}/dispositions [get]
func (h *DispositionHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	assignments, err := h.queries.GetDispositionAssignments(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Process godoc
// @Summary Complete an assignment
// @Description The assignee finishes the step; the request advances, escalates or becomes ready to sign
// @Tags Dispositions
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.ProcessDispositionRequest false "Outcome"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /dispositions/{id}/process [post]
func (h *DispositionHandler) Process(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ProcessDispositionRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid process payload") {
		return
	}
	assignment, err := h.commands.ProcessDisposition(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
