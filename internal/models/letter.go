package models

import "time"

// LetterStatus captures workflow states of a letter request.
type LetterStatus string

const (
	StatusDraft            LetterStatus = "DRAFT"
	StatusSubmitted        LetterStatus = "SUBMITTED"
	StatusApprovedKaprodi  LetterStatus = "APPROVED_KAPRODI"
	StatusForwardedToDekan LetterStatus = "FORWARDED_TO_DEKAN"

	StatusDisposisiToWD1               LetterStatus = "DISPOSISI_TO_WD1"
	StatusDisposisiToWD2               LetterStatus = "DISPOSISI_TO_WD2"
	StatusDisposisiToWD3               LetterStatus = "DISPOSISI_TO_WD3"
	StatusDisposisiToKabagTU           LetterStatus = "DISPOSISI_TO_KABAG_TU"
	StatusDisposisiToKaurAkademik      LetterStatus = "DISPOSISI_TO_KAUR_AKADEMIK"
	StatusDisposisiToKaurKemahasiswaan LetterStatus = "DISPOSISI_TO_KAUR_KEMAHASISWAAN"
	StatusDisposisiToKaurKeuangan      LetterStatus = "DISPOSISI_TO_KAUR_KEUANGAN"

	StatusProcessedByWD1               LetterStatus = "PROCESSED_BY_WD1"
	StatusProcessedByWD2               LetterStatus = "PROCESSED_BY_WD2"
	StatusProcessedByWD3               LetterStatus = "PROCESSED_BY_WD3"
	StatusProcessedByKabagTU           LetterStatus = "PROCESSED_BY_KABAG_TU"
	StatusProcessedByKaurAkademik      LetterStatus = "PROCESSED_BY_KAUR_AKADEMIK"
	StatusProcessedByKaurKemahasiswaan LetterStatus = "PROCESSED_BY_KAUR_KEMAHASISWAAN"
	StatusProcessedByKaurKeuangan      LetterStatus = "PROCESSED_BY_KAUR_KEUANGAN"

	StatusTTDReady        LetterStatus = "TTD_READY"
	StatusTTDDone         LetterStatus = "TTD_DONE"
	StatusReturnedToProdi LetterStatus = "RETURNED_TO_PRODI"
	StatusPrinted         LetterStatus = "PRINTED"
	StatusDelivered       LetterStatus = "DELIVERED"
	StatusArchived        LetterStatus = "ARCHIVED"
	StatusRejected        LetterStatus = "REJECTED"
	StatusEscalated       LetterStatus = "ESCALATED"
)

// statusActions maps a status reached through a generic update to the
// tracking action recorded for it. Statuses absent here record FORWARDED.
var statusActions = map[LetterStatus]TrackingAction{
	StatusDraft:                        ActionCreated,
	StatusSubmitted:                    ActionForwarded,
	StatusApprovedKaprodi:              ActionApproved,
	StatusForwardedToDekan:             ActionForwarded,
	StatusDisposisiToWD1:               ActionDisposisiAssigned,
	StatusDisposisiToWD2:               ActionDisposisiAssigned,
	StatusDisposisiToWD3:               ActionDisposisiAssigned,
	StatusDisposisiToKabagTU:           ActionDisposisiAssigned,
	StatusDisposisiToKaurAkademik:      ActionDisposisiAssigned,
	StatusDisposisiToKaurKemahasiswaan: ActionDisposisiAssigned,
	StatusDisposisiToKaurKeuangan:      ActionDisposisiAssigned,
	StatusProcessedByWD1:               ActionProcessed,
	StatusProcessedByWD2:               ActionProcessed,
	StatusProcessedByWD3:               ActionProcessed,
	StatusProcessedByKabagTU:           ActionProcessed,
	StatusProcessedByKaurAkademik:      ActionProcessed,
	StatusProcessedByKaurKemahasiswaan: ActionProcessed,
	StatusProcessedByKaurKeuangan:      ActionProcessed,
	StatusTTDReady:                     ActionForwarded,
	StatusTTDDone:                      ActionSigned,
	StatusReturnedToProdi:              ActionReturned,
	StatusPrinted:                      ActionPrinted,
	StatusDelivered:                    ActionDelivered,
	StatusArchived:                     ActionArchived,
	StatusRejected:                     ActionRejected,
	StatusEscalated:                    ActionEscalated,
}

// handlerRoles pins statuses whose handler must hold a specific role.
var handlerRoles = map[LetterStatus]UserRole{
	StatusTTDReady:  RoleDekan,
	StatusTTDDone:   RoleStaffFakultas,
	StatusEscalated: RoleAdmin,
}

// Valid reports whether s is a known workflow status.
func (s LetterStatus) Valid() bool {
	_, ok := statusActions[s]
	return ok
}

// TrackingAction returns the action recorded when a request enters s.
func (s LetterStatus) TrackingAction() TrackingAction {
	if action, ok := statusActions[s]; ok {
		return action
	}
	return ActionForwarded
}

// RequiredHandlerRole returns the role a handler must hold while in s.
func (s LetterStatus) RequiredHandlerRole() (UserRole, bool) {
	role, ok := handlerRoles[s]
	return role, ok
}

// Ptr returns a pointer to a copy of s.
func (s LetterStatus) Ptr() *LetterStatus {
	return &s
}

// LetterPriority captures request urgency.
type LetterPriority string

const (
	PriorityNormal LetterPriority = "NORMAL"
	PriorityUrgent LetterPriority = "URGENT"
)

// LetterRequest is a formal-letter request moving through the approval workflow.
type LetterRequest struct {
	ID                string         `db:"id" json:"id"`
	StudentID         string         `db:"student_id" json:"studentId"`
	CreatedBy         string         `db:"created_by" json:"createdBy"`
	LetterType        string         `db:"letter_type" json:"letterType"`
	Purpose           string         `db:"purpose" json:"purpose"`
	Priority          LetterPriority `db:"priority" json:"priority"`
	Status            LetterStatus   `db:"status" json:"status"`
	CurrentHandler    *string        `db:"current_handler" json:"currentHandler,omitempty"`
	DekanInstructions *string        `db:"dekan_instructions" json:"dekanInstructions,omitempty"`
	FinalLetterURL    *string        `db:"final_letter_url" json:"finalLetterUrl,omitempty"`
	SignatureData     *string        `db:"signature_data" json:"-"`
	SignedAt          *time.Time     `db:"signed_at" json:"signedAt,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// HandledBy reports whether userID is the current handler.
func (r *LetterRequest) HandledBy(userID string) bool {
	return r != nil && r.CurrentHandler != nil && userID != "" && *r.CurrentHandler == userID
}

// LetterRequestFilter constrains listing queries. Scope fields are set by the
// service from the acting user's role and are ANDed with the explicit filters.
type LetterRequestFilter struct {
	Status         LetterStatus
	Priority       LetterPriority
	StudentNIM     string
	CreatedBy      string
	CurrentHandler string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int

	ScopeCreatedBy   string
	ScopeProgram     string
	ScopeParticipant string
}

// SupportingDocument is a file reference attached to a letter request.
type SupportingDocument struct {
	ID         string    `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"requestId"`
	FileName   string    `db:"file_name" json:"fileName"`
	FileURL    string    `db:"file_url" json:"fileUrl"`
	UploadedBy string    `db:"uploaded_by" json:"uploadedBy"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploadedAt"`
}
