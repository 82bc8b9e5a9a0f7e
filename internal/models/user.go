package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent           UserRole = "STUDENT"
	RoleStaffProdi        UserRole = "STAFF_PRODI"
	RoleKaprodi           UserRole = "KAPRODI"
	RoleStaffFakultas     UserRole = "STAFF_FAKULTAS"
	RoleDekan             UserRole = "DEKAN"
	RoleWD1               UserRole = "WD1"
	RoleWD2               UserRole = "WD2"
	RoleWD3               UserRole = "WD3"
	RoleKabagTU           UserRole = "KABAG_TU"
	RoleKaurAkademik      UserRole = "KAUR_AKADEMIK"
	RoleKaurKemahasiswaan UserRole = "KAUR_KEMAHASISWAAN"
	RoleKaurKeuangan      UserRole = "KAUR_KEUANGAN"
	RoleAdmin             UserRole = "ADMIN"
)

// RoleScope groups roles by the breadth of requests they may see.
type RoleScope string

const (
	ScopeStudent RoleScope = "STUDENT"
	ScopeProgram RoleScope = "PROGRAM"
	ScopeFaculty RoleScope = "FACULTY"
	ScopeAdmin   RoleScope = "ADMIN"
)

// RoleAttributes describes what a role can do inside the letter workflow.
// DispositionStatus and ProcessedStatus are empty for roles the dean cannot
// dispose a request to.
type RoleAttributes struct {
	Scope              RoleScope
	RequiresProgram    bool
	CanUploadDocuments bool
	DispositionStatus  LetterStatus
	ProcessedStatus    LetterStatus
}

var roleAttributes = map[UserRole]RoleAttributes{
	RoleStudent:       {Scope: ScopeStudent},
	RoleStaffProdi:    {Scope: ScopeProgram, RequiresProgram: true},
	RoleKaprodi:       {Scope: ScopeProgram, RequiresProgram: true},
	RoleStaffFakultas: {Scope: ScopeFaculty},
	RoleDekan:         {Scope: ScopeFaculty},
	RoleWD1: {
		Scope: ScopeFaculty, CanUploadDocuments: true,
		DispositionStatus: StatusDisposisiToWD1, ProcessedStatus: StatusProcessedByWD1,
	},
	RoleWD2: {
		Scope: ScopeFaculty, CanUploadDocuments: true,
		DispositionStatus: StatusDisposisiToWD2, ProcessedStatus: StatusProcessedByWD2,
	},
	RoleWD3: {
		Scope: ScopeFaculty, CanUploadDocuments: true,
		DispositionStatus: StatusDisposisiToWD3, ProcessedStatus: StatusProcessedByWD3,
	},
	RoleKabagTU: {
		Scope: ScopeFaculty, CanUploadDocuments: true,
		DispositionStatus: StatusDisposisiToKabagTU, ProcessedStatus: StatusProcessedByKabagTU,
	},
	RoleKaurAkademik: {
		Scope: ScopeFaculty, CanUploadDocuments: true,
		DispositionStatus: StatusDisposisiToKaurAkademik, ProcessedStatus: StatusProcessedByKaurAkademik,
	},
	RoleKaurKemahasiswaan: {
		Scope: ScopeFaculty, CanUploadDocuments: true,
		DispositionStatus: StatusDisposisiToKaurKemahasiswaan, ProcessedStatus: StatusProcessedByKaurKemahasiswaan,
	},
	RoleKaurKeuangan: {
		Scope: ScopeFaculty, CanUploadDocuments: true,
		DispositionStatus: StatusDisposisiToKaurKeuangan, ProcessedStatus: StatusProcessedByKaurKeuangan,
	},
	RoleAdmin: {Scope: ScopeAdmin},
}

// Attributes returns the workflow attributes of the role.
func (r UserRole) Attributes() (RoleAttributes, bool) {
	attrs, ok := roleAttributes[r]
	return attrs, ok
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	_, ok := roleAttributes[r]
	return ok
}

// IsProcessedStatus reports whether status marks an officer finishing their step.
func IsProcessedStatus(status LetterStatus) bool {
	if status == "" {
		return false
	}
	for _, attrs := range roleAttributes {
		if attrs.ProcessedStatus == status {
			return true
		}
	}
	return false
}

// InDisposition reports whether status belongs to an officer step of a running
// disposition sequence, either routed to or processed by that officer.
func InDisposition(status LetterStatus) bool {
	if status == "" {
		return false
	}
	for _, attrs := range roleAttributes {
		if attrs.DispositionStatus == status || attrs.ProcessedStatus == status {
			return true
		}
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         UserRole  `db:"role" json:"role"`
	Program      *string   `db:"program" json:"program,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// ProgramName returns the affiliated program or an empty string.
func (u *User) ProgramName() string {
	if u == nil || u.Program == nil {
		return ""
	}
	return *u.Program
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
