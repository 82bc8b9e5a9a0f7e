package models

import "time"

// DispositionAssignment is one officer step scheduled by the dean for a request.
type DispositionAssignment struct {
	ID            string     `db:"id" json:"id"`
	RequestID     string     `db:"request_id" json:"requestId"`
	AssignedTo    string     `db:"assigned_to" json:"assignedTo"`
	AssignedBy    string     `db:"assigned_by" json:"assignedBy"`
	Instructions  string     `db:"instructions" json:"instructions"`
	OrderSequence int        `db:"order_sequence" json:"orderSequence"`
	IsCompleted   bool       `db:"is_completed" json:"isCompleted"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`

	AssigneeName *string   `db:"assignee_name" json:"assigneeName,omitempty"`
	AssigneeRole *UserRole `db:"assignee_role" json:"assigneeRole,omitempty"`
}
