package dto

// DispositionAssignmentInput schedules one officer.
type DispositionAssignmentInput struct {
	UserID        string `json:"userId" validate:"required"`
	OrderSequence int    `json:"orderSequence" validate:"required,min=1"`
}

// CreateDispositionRequest payload for POST /letters/:id/dispositions.
type CreateDispositionRequest struct {
	Instructions string                       `json:"instructions" validate:"required"`
	Assignments  []DispositionAssignmentInput `json:"assignments" validate:"required,min=1,dive"`
}

// ProcessDispositionRequest payload for POST /dispositions/:id/process.
type ProcessDispositionRequest struct {
	Notes               *string `json:"notes,omitempty"`
	Escalate            bool    `json:"escalate"`
	FlagForCoordination bool    `json:"flagForCoordination"`
}
