package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/letter-workflow-api/internal/models"
	"github.com/noah-isme/letter-workflow-api/internal/repository"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// memWorkflow is an in-memory stand-in for the six workflow tables. Each
// accessor type below implements one repository interface over it.
type memWorkflow struct {
	mu          sync.Mutex
	seq         int
	users       map[string]*models.User
	students    map[string]*models.Student
	requests    map[string]*models.LetterRequest
	documents   []models.SupportingDocument
	logs        []models.TrackingLog
	assignments []models.DispositionAssignment
	clockBase   time.Time
}

func newMemWorkflow() *memWorkflow {
	return &memWorkflow{
		users:     map[string]*models.User{},
		students:  map[string]*models.Student{},
		requests:  map[string]*models.LetterRequest{},
		clockBase: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memWorkflow) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// addUser registers a user whose created_at follows insertion order.
func (m *memWorkflow) addUser(id string, role models.UserRole, program string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := &models.User{
		ID:        id,
		Email:     id + "@faculty.test",
		Name:      strings.ToUpper(id),
		Role:      role,
		CreatedAt: m.clockBase.Add(time.Duration(len(m.users)) * time.Minute),
	}
	if program != "" {
		p := program
		user.Program = &p
	}
	m.users[id] = user
	return user
}

func (m *memWorkflow) addStudent(id, nim, program string) *models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	student := &models.Student{ID: id, NIM: nim, Name: "Student " + nim, Program: program, CreatedAt: m.clockBase}
	m.students[id] = student
	return student
}

func (m *memWorkflow) addRequest(req models.LetterRequest) *models.LetterRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == "" {
		req.ID = m.nextID("req")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	stored := req
	m.requests[req.ID] = &stored
	copyReq := stored
	return &copyReq
}

func (m *memWorkflow) request(id string) models.LetterRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func (m *memWorkflow) logsFor(requestID string) []models.TrackingLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TrackingLog
	for _, entry := range m.logs {
		if entry.RequestID == requestID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memWorkflow) assignmentsFor(requestID string) []models.DispositionAssignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DispositionAssignment
	for _, a := range m.assignments {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderSequence < out[j].OrderSequence })
	return out
}

type memRequests struct{ m *memWorkflow }

func (r memRequests) Create(ctx context.Context, exec sqlx.ExtContext, request *models.LetterRequest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if request.ID == "" {
		request.ID = r.m.nextID("req")
	}
	stored := *request
	r.m.requests[request.ID] = &stored
	return nil
}

func (r memRequests) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LetterRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyReq := *req
	return &copyReq, nil
}

func (r memRequests) UpdateWorkflow(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateWorkflowParams) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.requests[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if params.ExpectedStatus != "" && req.Status != params.ExpectedStatus {
		return sql.ErrNoRows
	}
	req.Status = params.Status
	req.UpdatedAt = params.UpdatedAt
	if params.CurrentHandler != nil {
		req.CurrentHandler = params.CurrentHandler
	}
	if params.DekanInstructions != nil {
		req.DekanInstructions = params.DekanInstructions
	}
	if params.FinalLetterURL != nil {
		req.FinalLetterURL = params.FinalLetterURL
	}
	if params.SignatureData != nil {
		req.SignatureData = params.SignatureData
	}
	if params.SignedAt != nil {
		req.SignedAt = params.SignedAt
	}
	return nil
}

func (r memRequests) List(ctx context.Context, filter models.LetterRequestFilter) ([]models.LetterRequest, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var matched []models.LetterRequest
	for _, req := range r.m.requests {
		student := r.m.students[req.StudentID]
		switch {
		case filter.ScopeCreatedBy != "" && req.CreatedBy != filter.ScopeCreatedBy:
			continue
		case filter.ScopeProgram != "" && (student == nil || student.Program != filter.ScopeProgram):
			continue
		case filter.ScopeParticipant != "" && req.CreatedBy != filter.ScopeParticipant && !req.HandledBy(filter.ScopeParticipant):
			continue
		case filter.Status != "" && req.Status != filter.Status:
			continue
		case filter.Priority != "" && req.Priority != filter.Priority:
			continue
		case filter.StudentNIM != "" && (student == nil || student.NIM != filter.StudentNIM):
			continue
		case filter.CreatedBy != "" && req.CreatedBy != filter.CreatedBy:
			continue
		case filter.CurrentHandler != "" && !req.HandledBy(filter.CurrentHandler):
			continue
		case filter.CreatedFrom != nil && req.CreatedAt.Before(*filter.CreatedFrom):
			continue
		case filter.CreatedTo != nil && req.CreatedAt.After(*filter.CreatedTo):
			continue
		}
		matched = append(matched, *req)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if filter.Offset >= total {
		return []models.LetterRequest{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

type memUsers struct{ m *memWorkflow }

func (u memUsers) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyUser := *user
	return &copyUser, nil
}

func (u memUsers) oldest(match func(*models.User) bool) (*models.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	var best *models.User
	for _, user := range u.m.users {
		if !match(user) {
			continue
		}
		if best == nil || user.CreatedAt.Before(best.CreatedAt) ||
			(user.CreatedAt.Equal(best.CreatedAt) && user.ID < best.ID) {
			best = user
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	copyUser := *best
	return &copyUser, nil
}

func (u memUsers) FindOldestByRole(ctx context.Context, exec sqlx.ExtContext, role models.UserRole) (*models.User, error) {
	return u.oldest(func(user *models.User) bool { return user.Role == role })
}

func (u memUsers) FindOldestByRoleAndProgram(ctx context.Context, exec sqlx.ExtContext, role models.UserRole, program string) (*models.User, error) {
	return u.oldest(func(user *models.User) bool { return user.Role == role && user.ProgramName() == program })
}

type memStudents struct{ m *memWorkflow }

func (s memStudents) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	student, ok := s.m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyStudent := *student
	return &copyStudent, nil
}

type memDocuments struct{ m *memWorkflow }

func (d memDocuments) Create(ctx context.Context, exec sqlx.ExtContext, doc *models.SupportingDocument) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = d.m.nextID("doc")
	}
	d.m.documents = append(d.m.documents, *doc)
	return nil
}

func (d memDocuments) ListByRequest(ctx context.Context, requestID string) ([]models.SupportingDocument, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	var out []models.SupportingDocument
	for _, doc := range d.m.documents {
		if doc.RequestID == requestID {
			out = append(out, doc)
		}
	}
	return out, nil
}

type memLogs struct{ m *memWorkflow }

func (l memLogs) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.TrackingLog) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = l.m.nextID("log")
	}
	l.m.logs = append(l.m.logs, *entry)
	return nil
}

func (l memLogs) ListByRequest(ctx context.Context, requestID string) ([]models.TrackingLog, error) {
	return l.m.logsFor(requestID), nil
}

type memDispositions struct{ m *memWorkflow }

func (d memDispositions) CreateBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.DispositionAssignment) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	for i := range assignments {
		if assignments[i].ID == "" {
			assignments[i].ID = d.m.nextID("disp")
		}
		d.m.assignments = append(d.m.assignments, assignments[i])
	}
	return nil
}

func (d memDispositions) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.DispositionAssignment, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	for _, a := range d.m.assignments {
		if a.ID == id {
			copyA := a
			return &copyA, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (d memDispositions) ListByRequest(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]models.DispositionAssignment, error) {
	return d.m.assignmentsFor(requestID), nil
}

func (d memDispositions) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, completedAt time.Time, notes *string) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	for i := range d.m.assignments {
		a := &d.m.assignments[i]
		if a.ID != id || a.IsCompleted {
			continue
		}
		a.IsCompleted = true
		a.CompletedAt = &completedAt
		a.Notes = notes
		return nil
	}
	return sql.ErrNoRows
}

func (d memDispositions) HasAssignment(ctx context.Context, requestID, userID string) (bool, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	for _, a := range d.m.assignments {
		if a.RequestID == requestID && a.AssignedTo == userID {
			return true, nil
		}
	}
	return false, nil
}

// workflowFixture wires the lifecycle, disposition and query services over a
// single memWorkflow.
type workflowFixture struct {
	store        *memWorkflow
	mock         sqlmock.Sqlmock
	letters      *LetterService
	dispositions *DispositionService
	queries      *LetterQueryService
	now          time.Time
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	store := newMemWorkflow()
	tx, mock := newTxProviderMock(t)
	users := memUsers{m: store}
	directory, err := NewRoleDirectory("", users)
	require.NoError(t, err)

	fixture := &workflowFixture{store: store, mock: mock, now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return fixture.now }

	fixture.letters = NewLetterService(tx, memRequests{m: store}, users, memStudents{m: store},
		memDocuments{m: store}, memLogs{m: store}, memDispositions{m: store}, directory, nil, zap.NewNop(),
		WithLetterClock(clock))
	fixture.dispositions = NewDispositionService(tx, memRequests{m: store}, users, memDispositions{m: store},
		memLogs{m: store}, directory, nil, zap.NewNop(), WithDispositionClock(clock))
	fixture.queries = NewLetterQueryService(memRequests{m: store}, users, memStudents{m: store},
		memLogs{m: store}, memDocuments{m: store}, memDispositions{m: store}, nil, zap.NewNop())
	return fixture
}

func (f *workflowFixture) tick() {
	f.now = f.now.Add(time.Minute)
}

func (f *workflowFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *workflowFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

// seedFaculty registers the canonical cast: a TI student and chair, dean, faculty
// staff, admin, and the officers used by disposition tests.
func (f *workflowFixture) seedFaculty() {
	f.store.addUser("admin", models.RoleAdmin, "")
	f.store.addUser("dean", models.RoleDekan, "")
	f.store.addUser("staff-fak", models.RoleStaffFakultas, "")
	f.store.addUser("chair-ti", models.RoleKaprodi, "TI")
	f.store.addUser("staff-ti", models.RoleStaffProdi, "TI")
	f.store.addUser("chair-si", models.RoleKaprodi, "SI")
	f.store.addUser("wd1", models.RoleWD1, "")
	f.store.addUser("kabag", models.RoleKabagTU, "")
	f.store.addUser("kaur-ak", models.RoleKaurAkademik, "")
	f.store.addUser("stu-user", models.RoleStudent, "")
	f.store.addStudent("stu-1", "2024001", "TI")
	f.store.addStudent("stu-2", "2024002", "SI")
}

func strPtr(v string) *string {
	return &v
}
