package models

import "time"

// TrackingAction enumerates audit trail entry kinds.
type TrackingAction string

const (
	ActionCreated           TrackingAction = "CREATED"
	ActionApproved          TrackingAction = "APPROVED"
	ActionRejected          TrackingAction = "REJECTED"
	ActionForwarded         TrackingAction = "FORWARDED"
	ActionDisposisiAssigned TrackingAction = "DISPOSISI_ASSIGNED"
	ActionProcessed         TrackingAction = "PROCESSED"
	ActionEscalated         TrackingAction = "ESCALATED"
	ActionSigned            TrackingAction = "SIGNED"
	ActionReturned          TrackingAction = "RETURNED"
	ActionPrinted           TrackingAction = "PRINTED"
	ActionDelivered         TrackingAction = "DELIVERED"
	ActionArchived          TrackingAction = "ARCHIVED"
	ActionNoteAdded         TrackingAction = "NOTE_ADDED"
	ActionDocumentUploaded  TrackingAction = "DOCUMENT_UPLOADED"
)

// Valid reports whether a is a known action.
func (a TrackingAction) Valid() bool {
	switch a {
	case ActionCreated, ActionApproved, ActionRejected, ActionForwarded,
		ActionDisposisiAssigned, ActionProcessed, ActionEscalated, ActionSigned,
		ActionReturned, ActionPrinted, ActionDelivered, ActionArchived,
		ActionNoteAdded, ActionDocumentUploaded:
		return true
	default:
		return false
	}
}

// TrackingLog is an append-only audit record for a letter request.
type TrackingLog struct {
	ID             string         `db:"id" json:"id"`
	RequestID      string         `db:"request_id" json:"requestId"`
	UserID         string         `db:"user_id" json:"userId"`
	ActionType     TrackingAction `db:"action_type" json:"actionType"`
	Description    string         `db:"description" json:"description"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	PreviousStatus *LetterStatus  `db:"previous_status" json:"previousStatus,omitempty"`
	NewStatus      *LetterStatus  `db:"new_status" json:"newStatus,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`

	UserName *string   `db:"user_name" json:"userName,omitempty"`
	UserRole *UserRole `db:"user_role" json:"userRole,omitempty"`
}
