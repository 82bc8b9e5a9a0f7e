package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/letter-workflow-api/internal/dto"
	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
)

func forwardedRequest(f *workflowFixture) *models.LetterRequest {
	return f.store.addRequest(models.LetterRequest{
		StudentID:      "stu-1",
		CreatedBy:      "staff-ti",
		LetterType:     "Surat Tugas",
		Purpose:        "Lomba",
		Status:         models.StatusForwardedToDekan,
		CurrentHandler: strPtr("dean"),
	})
}

func disposeToWD1AndKabag(t *testing.T, f *workflowFixture, requestID string) []models.DispositionAssignment {
	t.Helper()
	f.expectCommit()
	assignments, err := f.dispositions.CreateDisposition(context.Background(), requestID, dto.CreateDispositionRequest{
		Instructions: "Please review",
		Assignments: []dto.DispositionAssignmentInput{
			{UserID: "kabag", OrderSequence: 2},
			{UserID: "wd1", OrderSequence: 1},
		},
	}, "dean")
	require.NoError(t, err)
	return assignments
}

func TestDispositionServiceCreateDisposition(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)

	assignments := disposeToWD1AndKabag(t, f, req.ID)
	require.Len(t, assignments, 2)
	assert.Equal(t, "wd1", assignments[0].AssignedTo)
	assert.Equal(t, 1, assignments[0].OrderSequence)
	assert.Equal(t, "kabag", assignments[1].AssignedTo)

	stored := f.store.request(req.ID)
	assert.Equal(t, models.StatusDisposisiToWD1, stored.Status)
	assert.Equal(t, "wd1", *stored.CurrentHandler)
	assert.Equal(t, "Please review", *stored.DekanInstructions)

	persisted := f.store.assignmentsFor(req.ID)
	require.Len(t, persisted, 2)
	assert.Equal(t, []int{1, 2}, []int{persisted[0].OrderSequence, persisted[1].OrderSequence})
	for _, a := range persisted {
		assert.False(t, a.IsCompleted)
		assert.Equal(t, "dean", a.AssignedBy)
	}

	logs := f.store.logsFor(req.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionDisposisiAssigned, logs[0].ActionType)
	assertLatestLogMatches(t, f, req.ID)
}

func TestDispositionServiceCreateDispositionRequiresForwardedStatus(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := f.store.addRequest(models.LetterRequest{
		StudentID: "stu-1", CreatedBy: "staff-ti", Status: models.StatusApprovedKaprodi, CurrentHandler: strPtr("dean"),
	})

	f.expectRollback()
	_, err := f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "x",
		Assignments:  []dto.DispositionAssignmentInput{{UserID: "wd1", OrderSequence: 1}},
	}, "dean")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	assert.Empty(t, f.store.assignments)
	assert.Empty(t, f.store.logs)
	assert.Equal(t, models.StatusApprovedKaprodi, f.store.request(req.ID).Status)
}

func TestDispositionServiceCreateDispositionRejections(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)

	_, err := f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "x",
	}, "dean")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "x",
		Assignments: []dto.DispositionAssignmentInput{
			{UserID: "wd1", OrderSequence: 1},
			{UserID: "kabag", OrderSequence: 1},
		},
	}, "dean")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	f.expectRollback()
	_, err = f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "x",
		Assignments:  []dto.DispositionAssignmentInput{{UserID: "wd1", OrderSequence: 1}},
	}, "wd1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	f.expectRollback()
	_, err = f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "x",
		Assignments:  []dto.DispositionAssignmentInput{{UserID: "ghost", OrderSequence: 1}},
	}, "dean")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	f.expectRollback()
	_, err = f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "x",
		Assignments:  []dto.DispositionAssignmentInput{{UserID: "staff-fak", OrderSequence: 1}},
	}, "dean")
	assert.True(t, appErrors.Is(err, appErrors.ErrConfigurationMissing))

	assert.Empty(t, f.store.assignments)
	assert.Equal(t, models.StatusForwardedToDekan, f.store.request(req.ID).Status)
}

func TestDispositionServiceProcessAdvancesToNextAssignee(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	assignments := disposeToWD1AndKabag(t, f, req.ID)
	f.tick()

	f.expectCommit()
	done, err := f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, dto.ProcessDispositionRequest{
		Notes: strPtr("reviewed"),
	}, "wd1")
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "reviewed", *done.Notes)

	stored := f.store.request(req.ID)
	assert.Equal(t, models.StatusDisposisiToWD1, stored.Status)
	assert.Equal(t, "kabag", *stored.CurrentHandler)

	logs := f.store.logsFor(req.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionProcessed, logs[1].ActionType)
	assert.Equal(t, "Disposition assignment completed", logs[1].Description)
	assertLatestLogMatches(t, f, req.ID)

	open := 0
	for _, a := range f.store.assignmentsFor(req.ID) {
		if !a.IsCompleted {
			open++
			assert.Equal(t, *stored.CurrentHandler, a.AssignedTo)
		}
	}
	assert.Equal(t, 1, open)
}

func TestDispositionServiceProcessLastAssignmentReadiesSigning(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	assignments := disposeToWD1AndKabag(t, f, req.ID)

	f.tick()
	f.expectCommit()
	_, err := f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, dto.ProcessDispositionRequest{}, "wd1")
	require.NoError(t, err)

	f.tick()
	f.expectCommit()
	_, err = f.dispositions.ProcessDisposition(context.Background(), assignments[1].ID, dto.ProcessDispositionRequest{}, "kabag")
	require.NoError(t, err)

	stored := f.store.request(req.ID)
	assert.Equal(t, models.StatusTTDReady, stored.Status)
	assert.Equal(t, "dean", *stored.CurrentHandler)

	logs := f.store.logsFor(req.ID)
	require.Len(t, logs, 3)
	assert.Equal(t, "All disposition assignments completed, ready for signing", logs[2].Description)
	assert.Equal(t, models.StatusTTDReady, *logs[2].NewStatus)
}

func TestDispositionServiceProcessEscalateWins(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	assignments := disposeToWD1AndKabag(t, f, req.ID)

	f.expectCommit()
	_, err := f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, dto.ProcessDispositionRequest{
		Escalate: true, FlagForCoordination: true,
	}, "wd1")
	require.NoError(t, err)

	stored := f.store.request(req.ID)
	assert.Equal(t, models.StatusEscalated, stored.Status)
	assert.Equal(t, "admin", *stored.CurrentHandler)
	logs := f.store.logsFor(req.ID)
	assert.Equal(t, models.ActionEscalated, logs[len(logs)-1].ActionType)
	assert.Equal(t, "Request escalated to admin", logs[len(logs)-1].Description)

	remaining := f.store.assignmentsFor(req.ID)
	assert.False(t, remaining[1].IsCompleted)
}

func TestDispositionServiceProcessFlagForCoordination(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	assignments := disposeToWD1AndKabag(t, f, req.ID)

	f.expectCommit()
	_, err := f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, dto.ProcessDispositionRequest{
		FlagForCoordination: true,
	}, "wd1")
	require.NoError(t, err)

	stored := f.store.request(req.ID)
	assert.Equal(t, models.StatusForwardedToDekan, stored.Status)
	assert.Equal(t, "dean", *stored.CurrentHandler)
	logs := f.store.logsFor(req.ID)
	assert.Equal(t, "Request flagged for dean coordination", logs[len(logs)-1].Description)
}

func TestDispositionServiceProcessTwiceFailsWithNotFound(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	assignments := disposeToWD1AndKabag(t, f, req.ID)

	f.expectCommit()
	_, err := f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, dto.ProcessDispositionRequest{}, "wd1")
	require.NoError(t, err)
	logCount := len(f.store.logsFor(req.ID))

	f.expectRollback()
	_, err = f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, dto.ProcessDispositionRequest{}, "wd1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Len(t, f.store.logsFor(req.ID), logCount)
	assert.Equal(t, "kabag", *f.store.request(req.ID).CurrentHandler)
}

func TestDispositionServiceProcessForeignOrMissingAssignment(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	assignments := disposeToWD1AndKabag(t, f, req.ID)

	f.expectRollback()
	_, err := f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, dto.ProcessDispositionRequest{}, "kabag")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	f.expectRollback()
	_, err = f.dispositions.ProcessDisposition(context.Background(), "nope", dto.ProcessDispositionRequest{}, "wd1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	assert.Equal(t, "wd1", *f.store.request(req.ID).CurrentHandler)
}

func TestNextAssignment(t *testing.T) {
	list := []models.DispositionAssignment{
		{ID: "a", OrderSequence: 1, IsCompleted: true},
		{ID: "b", OrderSequence: 5},
		{ID: "c", OrderSequence: 3, IsCompleted: true},
		{ID: "d", OrderSequence: 4},
		{ID: "e", OrderSequence: 2},
	}

	next := nextAssignment(list, &list[4])
	require.NotNil(t, next)
	assert.Equal(t, "d", next.ID)

	assert.Nil(t, nextAssignment(list, &list[1]))

	next = nextAssignment(list, &list[0])
	require.NotNil(t, next)
	assert.Equal(t, "e", next.ID)
}

func TestDispositionServiceBypassedStepsStayClosed(t *testing.T) {
	cases := []struct {
		name    string
		req     dto.ProcessDispositionRequest
		status  models.LetterStatus
		handler string
	}{
		{name: "escalated", req: dto.ProcessDispositionRequest{Escalate: true}, status: models.StatusEscalated, handler: "admin"},
		{name: "coordination", req: dto.ProcessDispositionRequest{FlagForCoordination: true}, status: models.StatusForwardedToDekan, handler: "dean"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWorkflowFixture(t)
			f.seedFaculty()
			req := forwardedRequest(f)
			assignments := disposeToWD1AndKabag(t, f, req.ID)

			f.expectCommit()
			_, err := f.dispositions.ProcessDisposition(context.Background(), assignments[0].ID, tc.req, "wd1")
			require.NoError(t, err)
			logCount := len(f.store.logsFor(req.ID))

			f.expectRollback()
			_, err = f.dispositions.ProcessDisposition(context.Background(), assignments[1].ID, dto.ProcessDispositionRequest{}, "kabag")
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

			stored := f.store.request(req.ID)
			assert.Equal(t, tc.status, stored.Status)
			assert.Equal(t, tc.handler, *stored.CurrentHandler)
			assert.Len(t, f.store.logsFor(req.ID), logCount)
			assert.False(t, f.store.assignmentsFor(req.ID)[1].IsCompleted)
		})
	}
}

func TestDispositionServiceProcessOutOfTurnFails(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	assignments := disposeToWD1AndKabag(t, f, req.ID)

	f.expectRollback()
	_, err := f.dispositions.ProcessDisposition(context.Background(), assignments[1].ID, dto.ProcessDispositionRequest{}, "kabag")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	stored := f.store.request(req.ID)
	assert.Equal(t, models.StatusDisposisiToWD1, stored.Status)
	assert.Equal(t, "wd1", *stored.CurrentHandler)
	for _, a := range f.store.assignmentsFor(req.ID) {
		assert.False(t, a.IsCompleted, a.AssignedTo)
	}
	assert.Len(t, f.store.logsFor(req.ID), 1)
}

func TestDispositionServiceSecondRoundAfterCoordination(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedFaculty()
	req := forwardedRequest(f)
	first := disposeToWD1AndKabag(t, f, req.ID)

	f.expectCommit()
	_, err := f.dispositions.ProcessDisposition(context.Background(), first[0].ID, dto.ProcessDispositionRequest{
		FlagForCoordination: true,
	}, "wd1")
	require.NoError(t, err)

	f.tick()
	f.expectRollback()
	_, err = f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "Coordinate with finance",
		Assignments:  []dto.DispositionAssignmentInput{{UserID: "kaur-ak", OrderSequence: 2}},
	}, "dean")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Len(t, f.store.assignmentsFor(req.ID), 2)
	assert.Equal(t, models.StatusForwardedToDekan, f.store.request(req.ID).Status)

	f.expectCommit()
	second, err := f.dispositions.CreateDisposition(context.Background(), req.ID, dto.CreateDispositionRequest{
		Instructions: "Coordinate with finance",
		Assignments: []dto.DispositionAssignmentInput{
			{UserID: "kabag", OrderSequence: 3},
			{UserID: "kaur-ak", OrderSequence: 4},
		},
	}, "dean")
	require.NoError(t, err)
	require.Len(t, second, 2)

	stored := f.store.request(req.ID)
	assert.Equal(t, models.StatusDisposisiToKabagTU, stored.Status)
	assert.Equal(t, "kabag", *stored.CurrentHandler)

	// The leftover row from the first round belongs to the current handler
	// but was bypassed.
	f.tick()
	f.expectRollback()
	_, err = f.dispositions.ProcessDisposition(context.Background(), first[1].ID, dto.ProcessDispositionRequest{}, "kabag")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	f.expectCommit()
	_, err = f.dispositions.ProcessDisposition(context.Background(), second[0].ID, dto.ProcessDispositionRequest{}, "kabag")
	require.NoError(t, err)
	assert.Equal(t, "kaur-ak", *f.store.request(req.ID).CurrentHandler)

	f.tick()
	f.expectCommit()
	_, err = f.dispositions.ProcessDisposition(context.Background(), second[1].ID, dto.ProcessDispositionRequest{}, "kaur-ak")
	require.NoError(t, err)
	stored = f.store.request(req.ID)
	assert.Equal(t, models.StatusTTDReady, stored.Status)
	assert.Equal(t, "dean", *stored.CurrentHandler)

	seqCounts := map[int]int{}
	for _, a := range f.store.assignmentsFor(req.ID) {
		seqCounts[a.OrderSequence]++
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1, 4: 1}, seqCounts)
}

func TestActiveAssignmentIgnoresBypassedRounds(t *testing.T) {
	round1 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	round2 := round1.Add(time.Hour)
	list := []models.DispositionAssignment{
		{ID: "a", OrderSequence: 1, IsCompleted: true, CreatedAt: round1},
		{ID: "b", OrderSequence: 2, CreatedAt: round1},
		{ID: "c", OrderSequence: 4, CreatedAt: round2},
		{ID: "d", OrderSequence: 3, CreatedAt: round2},
	}
	active := activeAssignment(list)
	require.NotNil(t, active)
	assert.Equal(t, "d", active.ID)

	list[3].IsCompleted = true
	list[2].IsCompleted = true
	assert.Nil(t, activeAssignment(list))
	assert.Equal(t, 4, maxOrderSequence(list))
	assert.Zero(t, maxOrderSequence(nil))
}
