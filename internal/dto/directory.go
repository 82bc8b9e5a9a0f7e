package dto

import "github.com/noah-isme/letter-workflow-api/internal/models"

// CreateUserRequest payload for POST /users.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Name     string          `json:"name" validate:"required,max=150"`
	Role     models.UserRole `json:"role" validate:"required"`
	Program  *string         `json:"program,omitempty"`
	Password string          `json:"password" validate:"omitempty,min=8"`
}

// CreateStudentRequest payload for POST /students.
type CreateStudentRequest struct {
	NIM     string `json:"nim" validate:"required,max=30"`
	Name    string `json:"name" validate:"required,max=150"`
	Program string `json:"program" validate:"required,max=100"`
}
