package dto

import "github.com/noah-isme/letter-workflow-api/internal/models"

// DocumentInput references an uploaded file by URL.
type DocumentInput struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileURL  string `json:"fileUrl" validate:"required,url"`
}

// CreateLetterRequest payload for POST /letters.
type CreateLetterRequest struct {
	StudentID  string                `json:"studentId" validate:"required"`
	LetterType string                `json:"letterType" validate:"required,max=100"`
	Purpose    string                `json:"purpose" validate:"required"`
	Priority   models.LetterPriority `json:"priority" validate:"omitempty,oneof=NORMAL URGENT"`
	Documents  []DocumentInput       `json:"documents" validate:"omitempty,dive"`
}

// UpdateStatusRequest payload for PATCH /letters/:id/status.
type UpdateStatusRequest struct {
	Status        models.LetterStatus `json:"status" validate:"required"`
	Notes         *string             `json:"notes,omitempty"`
	NextHandlerID *string             `json:"nextHandlerId,omitempty"`
}

// UploadFinalLetterRequest payload for POST /letters/:id/final-letter.
type UploadFinalLetterRequest struct {
	FileURL string `json:"fileUrl" validate:"required,url"`
}

// SignLetterRequest payload for POST /letters/:id/sign. The signature is
// recorded as opaque data.
type SignLetterRequest struct {
	SignatureData string `json:"signatureData" validate:"required"`
}

// AddTrackingLogRequest payload for POST /letters/:id/tracking.
type AddTrackingLogRequest struct {
	ActionType     models.TrackingAction `json:"actionType" validate:"required"`
	Description    string                `json:"description" validate:"required"`
	Notes          *string               `json:"notes,omitempty"`
	PreviousStatus *models.LetterStatus  `json:"previousStatus,omitempty"`
	NewStatus      *models.LetterStatus  `json:"newStatus,omitempty"`
}

// LetterQuery mirrors GET /letters filters.
type LetterQuery struct {
	Status    models.LetterStatus
	Priority  models.LetterPriority
	NIM       string
	CreatedBy string
	Handler   string
	From      string
	To        string
	Limit     int
	Offset    int
}

// LetterListResponse wraps a page of requests.
type LetterListResponse struct {
	Items  []models.LetterRequest `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}
