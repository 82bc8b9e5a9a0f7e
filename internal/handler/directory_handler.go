package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/middleware"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
	"github.com/noah-isme/letter-workflow-api/pkg/response"
)

type directoryService interface {
	CreateUser(ctx context.Context, req dto.CreateUserRequest) (*models.User, error)
	CreateStudent(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error)
	GetUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, bool, error)
	GetStudents(ctx context.Context, search string) ([]models.Student, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// DirectoryHandler exposes users and students.
type DirectoryHandler struct {
	service directoryService
}

// NewDirectoryHandler constructs the handler.
func NewDirectoryHandler(svc directoryService) *DirectoryHandler {
	return &DirectoryHandler{service: svc}
}

// CreateUser godoc
// @Summary Create user
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "User"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *DirectoryHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if !bindJSON(c, &req, "invalid user payload") {
		return
	}
	user, err := h.service.CreateUser(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// ListUsers godoc
// @Summary Users holding a role
// @Tags Directory
// @Produce json
// @Param role query string true "Role"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users [get]
func (h *DirectoryHandler) ListUsers(c *gin.Context) {
	role := models.UserRole(strings.ToUpper(strings.TrimSpace(c.Query("role"))))
	if role == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "role is required"))
		return
	}
	users, hit, err := h.service.GetUsersByRole(c.Request.Context(), role)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, users, nil, middleware.ExtractMeta(c))
}

// GetUser godoc
// @Summary Get user
// @Tags Directory
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *DirectoryHandler) GetUser(c *gin.Context) {
	user, err := h.service.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// CreateStudent godoc
// @Summary Create student
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.CreateStudentRequest true "Student"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *DirectoryHandler) CreateStudent(c *gin.Context) {
	var req dto.CreateStudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	student, err := h.service.CreateStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// ListStudents godoc
// @Summary Search students
// @Tags Directory
// @Produce json
// @Param search query string false "NIM or name fragment"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *DirectoryHandler) ListStudents(c *gin.Context) {
	students, err := h.service.GetStudents(c.Request.Context(), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}
