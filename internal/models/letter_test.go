package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfficerRolesMapToDistinctStatuses(t *testing.T) {
	seenDisposition := map[LetterStatus]UserRole{}
	seenProcessed := map[LetterStatus]UserRole{}
	officers := []UserRole{RoleWD1, RoleWD2, RoleWD3, RoleKabagTU, RoleKaurAkademik, RoleKaurKemahasiswaan, RoleKaurKeuangan}
	for _, role := range officers {
		attrs, ok := role.Attributes()
		assert.True(t, ok, role)
		assert.True(t, attrs.CanUploadDocuments, role)
		assert.True(t, attrs.DispositionStatus.Valid(), role)
		assert.True(t, IsProcessedStatus(attrs.ProcessedStatus), role)

		_, dup := seenDisposition[attrs.DispositionStatus]
		assert.False(t, dup, "duplicate disposition status for %s", role)
		seenDisposition[attrs.DispositionStatus] = role
		_, dup = seenProcessed[attrs.ProcessedStatus]
		assert.False(t, dup, "duplicate processed status for %s", role)
		seenProcessed[attrs.ProcessedStatus] = role
	}
}

func TestNonOfficerRolesHaveNoDispositionStatus(t *testing.T) {
	for _, role := range []UserRole{RoleStudent, RoleStaffProdi, RoleKaprodi, RoleStaffFakultas, RoleDekan, RoleAdmin} {
		attrs, ok := role.Attributes()
		assert.True(t, ok)
		assert.Empty(t, attrs.DispositionStatus, role)
		assert.False(t, attrs.CanUploadDocuments, role)
	}
	assert.False(t, UserRole("RECTOR").Valid())
}

func TestProgramRolesRequireProgram(t *testing.T) {
	for _, role := range []UserRole{RoleStaffProdi, RoleKaprodi} {
		attrs, _ := role.Attributes()
		assert.True(t, attrs.RequiresProgram)
		assert.Equal(t, ScopeProgram, attrs.Scope)
	}
}

func TestStatusTrackingAction(t *testing.T) {
	assert.Equal(t, ActionApproved, StatusApprovedKaprodi.TrackingAction())
	assert.Equal(t, ActionProcessed, StatusProcessedByKabagTU.TrackingAction())
	assert.Equal(t, ActionSigned, StatusTTDDone.TrackingAction())
	assert.Equal(t, ActionRejected, StatusRejected.TrackingAction())
	assert.Equal(t, ActionForwarded, LetterStatus("UNKNOWN").TrackingAction())
	assert.False(t, LetterStatus("UNKNOWN").Valid())
	assert.False(t, IsProcessedStatus(StatusTTDReady))
}

func TestInDisposition(t *testing.T) {
	assert.True(t, InDisposition(StatusDisposisiToWD1))
	assert.True(t, InDisposition(StatusProcessedByKaurKeuangan))
	for _, status := range []LetterStatus{StatusForwardedToDekan, StatusEscalated, StatusTTDReady, StatusTTDDone, ""} {
		assert.False(t, InDisposition(status), status)
	}
}

func TestRequiredHandlerRole(t *testing.T) {
	role, ok := StatusTTDReady.RequiredHandlerRole()
	assert.True(t, ok)
	assert.Equal(t, RoleDekan, role)

	role, ok = StatusEscalated.RequiredHandlerRole()
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	_, ok = StatusApprovedKaprodi.RequiredHandlerRole()
	assert.False(t, ok)
}

func TestLetterRequestHandledBy(t *testing.T) {
	handler := "user-1"
	req := &LetterRequest{CurrentHandler: &handler}
	assert.True(t, req.HandledBy("user-1"))
	assert.False(t, req.HandledBy("user-2"))
	assert.False(t, req.HandledBy(""))
	assert.False(t, (&LetterRequest{}).HandledBy("user-1"))
}
