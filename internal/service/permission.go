package service

import "github.com/noah-isme/letter-workflow-api/internal/models"

// DenyReason explains a denied Decision. Reasons are logged, never returned to
// callers.
type DenyReason string

const (
	DenyUnknownActor   DenyReason = "unknown_actor"
	DenyNotParticipant DenyReason = "not_participant"
	DenyWrongRole      DenyReason = "wrong_role"
	DenyWrongProgram   DenyReason = "wrong_program"
	DenyNotFound       DenyReason = "not_found"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// requestRelation carries facts about the actor's relation to a request that
// need a store lookup to establish.
type requestRelation struct {
	Assignee       bool
	StudentProgram string
}

func isAdmin(actor *models.User) bool {
	return actor != nil && actor.Role == models.RoleAdmin
}

func isParticipant(actor *models.User, req *models.LetterRequest) bool {
	if actor == nil || req == nil {
		return false
	}
	return req.CreatedBy == actor.ID || req.HandledBy(actor.ID)
}

// canViewRequest covers request detail and supporting documents.
func canViewRequest(actor *models.User, req *models.LetterRequest) Decision {
	switch {
	case actor == nil:
		return deny(DenyUnknownActor)
	case isAdmin(actor), isParticipant(actor, req):
		return allow()
	default:
		return deny(DenyNotParticipant)
	}
}

func canViewDispositions(actor *models.User, req *models.LetterRequest, rel requestRelation) Decision {
	if d := canViewRequest(actor, req); d.Allowed || d.Reason == DenyUnknownActor {
		return d
	}
	if rel.Assignee {
		return allow()
	}
	return deny(DenyNotParticipant)
}

func canViewTrackingLogs(actor *models.User, req *models.LetterRequest, rel requestRelation) Decision {
	if d := canViewDispositions(actor, req, rel); d.Allowed || d.Reason == DenyUnknownActor {
		return d
	}
	attrs, ok := actor.Role.Attributes()
	if !ok {
		return deny(DenyWrongRole)
	}
	switch attrs.Scope {
	case models.ScopeFaculty:
		return allow()
	case models.ScopeProgram:
		program := actor.ProgramName()
		if program != "" && program == rel.StudentProgram {
			return allow()
		}
		return deny(DenyWrongProgram)
	default:
		return deny(DenyNotParticipant)
	}
}

func canUpdateStatus(actor *models.User, req *models.LetterRequest) Decision {
	if actor == nil {
		return deny(DenyUnknownActor)
	}
	if isParticipant(actor, req) {
		return allow()
	}
	return deny(DenyNotParticipant)
}

func canUploadFinalLetter(actor *models.User, req *models.LetterRequest) Decision {
	if actor == nil {
		return deny(DenyUnknownActor)
	}
	if req.HandledBy(actor.ID) {
		return allow()
	}
	return deny(DenyNotParticipant)
}

func hasRole(actor *models.User, role models.UserRole) Decision {
	if actor == nil {
		return deny(DenyUnknownActor)
	}
	if actor.Role == role {
		return allow()
	}
	return deny(DenyWrongRole)
}

func canUploadDocument(actor *models.User, req *models.LetterRequest) Decision {
	if actor == nil {
		return deny(DenyUnknownActor)
	}
	if isAdmin(actor) || isParticipant(actor, req) {
		return allow()
	}
	if attrs, ok := actor.Role.Attributes(); ok && attrs.CanUploadDocuments {
		return allow()
	}
	return deny(DenyWrongRole)
}

func canAddTrackingLog(actor *models.User, req *models.LetterRequest, rel requestRelation) Decision {
	if actor == nil {
		return deny(DenyUnknownActor)
	}
	if isAdmin(actor) || isParticipant(actor, req) || rel.Assignee {
		return allow()
	}
	return deny(DenyNotParticipant)
}

// listScope narrows a listing filter to what actor may see. ok is false when
// the result must be forced empty.
func listScope(actor *models.User, filter models.LetterRequestFilter) (models.LetterRequestFilter, bool) {
	if actor == nil {
		return filter, false
	}
	attrs, known := actor.Role.Attributes()
	if !known {
		return filter, false
	}
	switch attrs.Scope {
	case models.ScopeAdmin:
	case models.ScopeStudent:
		filter.ScopeCreatedBy = actor.ID
	case models.ScopeProgram:
		program := actor.ProgramName()
		if program == "" {
			return filter, false
		}
		filter.ScopeProgram = program
	case models.ScopeFaculty:
		filter.ScopeParticipant = actor.ID
	default:
		return filter, false
	}
	return filter, true
}
