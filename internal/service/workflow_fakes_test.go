package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/halaqa-api/internal/models"
	"github.com/noah-isme/halaqa-api/internal/repository"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func (m *memUsers) add(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = make(map[string]models.User)
	}
	m.users[u.ID] = u
}

func (m *memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type memHalaqas struct {
	mu      sync.Mutex
	halaqas map[string]models.Halaqa
	lookups int
}

func (m *memHalaqas) add(h models.Halaqa) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.halaqas == nil {
		m.halaqas = make(map[string]models.Halaqa)
	}
	m.halaqas[h.ID] = h
}

func (m *memHalaqas) FindByID(ctx context.Context, id string) (*models.Halaqa, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	h, ok := m.halaqas[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &h, nil
}

func (m *memHalaqas) List(ctx context.Context, filter models.HalaqaFilter) ([]models.Halaqa, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Halaqa
	for _, h := range m.halaqas {
		if filter.TeacherID != "" && h.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, h)
	}
	return out, len(out), nil
}

// memEnrollments keeps at most one ACTIVE row per (student, halaqa), like the
// partial unique index in Postgres.
type memEnrollments struct {
	mu         sync.Mutex
	items      []models.Enrollment
	lastFilter models.EnrollmentFilter
}

func (m *memEnrollments) seed(e models.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = fmt.Sprintf("enr-%d", len(m.items)+1)
	}
	if e.Status == "" {
		e.Status = models.EnrollmentStatusActive
	}
	m.items = append(m.items, e)
}

func (m *memEnrollments) active(studentID, halaqaID string) []models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Enrollment
	for _, e := range m.items {
		if e.Status != models.EnrollmentStatusActive {
			continue
		}
		if (studentID == "" || e.StudentID == studentID) && (halaqaID == "" || e.HalaqaID == halaqaID) {
			out = append(out, e)
		}
	}
	return out
}

func (m *memEnrollments) FindActive(ctx context.Context, studentID, halaqaID string) (*models.Enrollment, error) {
	found := m.active(studentID, halaqaID)
	if len(found) == 0 {
		return nil, sql.ErrNoRows
	}
	return &found[0], nil
}

func (m *memEnrollments) CountActive(ctx context.Context, halaqaID string) (int, error) {
	return len(m.active("", halaqaID)), nil
}

func (m *memEnrollments) EnsureActiveWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) (*models.Enrollment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.Status == models.EnrollmentStatusActive && e.StudentID == enrollment.StudentID && e.HalaqaID == enrollment.HalaqaID {
			existing := e
			return &existing, false, nil
		}
	}
	stored := *enrollment
	stored.ID = fmt.Sprintf("enr-%d", len(m.items)+1)
	stored.Status = models.EnrollmentStatusActive
	stored.CreatedAt = time.Now().UTC()
	m.items = append(m.items, stored)
	return &stored, true, nil
}

func (m *memEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var out []models.Enrollment
	for _, e := range m.items {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.HalaqaID != "" && e.HalaqaID != filter.HalaqaID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memEnrollments) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, leftAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.items {
		if e.ID == id && e.Status == models.EnrollmentStatusActive {
			m.items[i].Status = status
			m.items[i].LeftAt = leftAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memEnrollments) ListRoster(ctx context.Context, halaqaID string) ([]models.RosterEntry, error) {
	var roster []models.RosterEntry
	for _, e := range m.active("", halaqaID) {
		roster = append(roster, models.RosterEntry{
			EnrollmentID: e.ID,
			StudentID:    e.StudentID,
			StudentName:  "Student " + e.StudentID,
			StudentEmail: e.StudentID + "@example.com",
			JoinedAt:     e.CreatedAt,
		})
	}
	return roster, nil
}

// memJoinRequests applies status transitions as compare-and-set under a lock.
type memJoinRequests struct {
	mu         sync.Mutex
	items      map[string]models.JoinRequest
	seq        int
	lastFilter models.JoinRequestFilter
}

func (m *memJoinRequests) Create(ctx context.Context, request *models.JoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]models.JoinRequest)
	}
	m.seq++
	if request.ID == "" {
		request.ID = fmt.Sprintf("jr-%d", m.seq)
	}
	request.UpdatedAt = request.CreatedAt
	m.items[request.ID] = *request
	return nil
}

func (m *memJoinRequests) FindByID(ctx context.Context, id string) (*models.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *memJoinRequests) List(ctx context.Context, filter models.JoinRequestFilter) ([]models.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var out []models.JoinRequest
	for _, r := range m.items {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.TeacherID != "" && (r.TargetTeacherID == nil || *r.TargetTeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memJoinRequests) UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, params repository.UpdateJoinRequestParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[params.ID]
	if !ok || !statusIn(r.Status, params.Expected) {
		return sql.ErrNoRows
	}
	r.Status = params.Status
	if params.Response != nil {
		r.Response = params.Response
	}
	if params.ApprovedHalaqaID != nil {
		r.ApprovedHalaqaID = params.ApprovedHalaqaID
	}
	reviewer := params.ReviewedBy
	r.ReviewedBy = &reviewer
	resolvedAt := params.ResolvedAt
	r.ResolvedAt = &resolvedAt
	r.UpdatedAt = resolvedAt
	m.items[params.ID] = r
	return nil
}

func (m *memJoinRequests) DeleteWithStatus(ctx context.Context, id string, status models.JoinRequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok || r.Status != status {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *memJoinRequests) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func statusIn(status models.JoinRequestStatus, expected []models.JoinRequestStatus) bool {
	for _, s := range expected {
		if s == status {
			return true
		}
	}
	return false
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *recordingAudit) count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, log := range r.logs {
		if log.Action == action {
			total++
		}
	}
	return total
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) ofType(kind models.NotificationType) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.sent {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

var (
	adminActor    = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	teacherOne    = models.Actor{UserID: "teacher-1", Role: models.RoleTeacher, AcademyID: "acad-1"}
	teacherTwo    = models.Actor{UserID: "teacher-2", Role: models.RoleTeacher, AcademyID: "acad-1"}
	teacherOther  = models.Actor{UserID: "teacher-3", Role: models.RoleTeacher, AcademyID: "acad-2"}
	studentActor  = models.Actor{UserID: "student-1", Role: models.RoleStudent, AcademyID: "acad-1"}
	otherStudent  = models.Actor{UserID: "student-2", Role: models.RoleStudent, AcademyID: "acad-1"}
	fixedResolved = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
)

type workflowFixture struct {
	users       *memUsers
	halaqas     *memHalaqas
	enrollments *memEnrollments
	requests    *memJoinRequests
	audit       *recordingAudit
	notifier    *recordingNotifier
	eligibility *EligibilityService
	enrollment  *EnrollmentService
	svc         *JoinRequestService
}

// newWorkflowFixture seeds one academy with two teachers, a third teacher in
// another academy, two students and three halaqas. h-small holds one seat,
// already taken by student-2.
func newWorkflowFixture(t *testing.T, cfg EnrollmentServiceConfig, opts ...JoinRequestServiceOption) *workflowFixture {
	t.Helper()
	academy := "acad-1"
	otherAcademy := "acad-2"
	one := 1

	f := &workflowFixture{
		users:       &memUsers{},
		halaqas:     &memHalaqas{},
		enrollments: &memEnrollments{},
		requests:    &memJoinRequests{},
		audit:       &recordingAudit{},
		notifier:    &recordingNotifier{},
	}
	f.users.add(models.User{ID: "admin-1", Role: models.RoleAdmin, Active: true})
	f.users.add(models.User{ID: "teacher-1", Role: models.RoleTeacher, AcademyID: &academy, Active: true})
	f.users.add(models.User{ID: "teacher-2", Role: models.RoleTeacher, AcademyID: &academy, Active: true})
	f.users.add(models.User{ID: "teacher-3", Role: models.RoleTeacher, AcademyID: &otherAcademy, Active: true})
	f.users.add(models.User{ID: "student-1", Role: models.RoleStudent, AcademyID: &academy, Active: true})
	f.users.add(models.User{ID: "student-2", Role: models.RoleStudent, AcademyID: &academy, Active: true})
	f.users.add(models.User{ID: "student-3", Role: models.RoleStudent, AcademyID: &academy, Active: false})

	f.halaqas.add(models.Halaqa{ID: "h-1", AcademyID: academy, TeacherID: "teacher-1", Name: "Al-Fatihah", Type: models.HalaqaTypePrivate})
	f.halaqas.add(models.Halaqa{ID: "h-2", AcademyID: academy, TeacherID: "teacher-2", Name: "Al-Baqarah", Type: models.HalaqaTypeGeneral})
	f.halaqas.add(models.Halaqa{ID: "h-small", AcademyID: academy, TeacherID: "teacher-1", Name: "Ali Imran", Type: models.HalaqaTypePrivate, Capacity: &one})
	f.enrollments.seed(models.Enrollment{StudentID: "student-2", HalaqaID: "h-small"})

	f.eligibility = NewEligibilityService(f.halaqas, f.enrollments)
	f.enrollment = NewEnrollmentService(f.enrollments, f.halaqas, f.eligibility, f.audit, nil, nil, zap.NewNop(), cfg)

	base := []JoinRequestServiceOption{
		WithJoinRequestAudit(f.audit),
		WithJoinRequestNotifier(f.notifier),
		WithJoinRequestClock(func() time.Time { return fixedResolved }),
	}
	f.svc = NewJoinRequestService(f.requests, f.users, f.halaqas, f.eligibility, f.enrollment, zap.NewNop(), append(base, opts...)...)
	return f
}

func (f *workflowFixture) seedRequest(t *testing.T, request models.JoinRequest) *models.JoinRequest {
	t.Helper()
	if request.Status == "" {
		request.Status = models.JoinRequestStatusPending
	}
	if request.AcademyID == nil {
		academy := "acad-1"
		request.AcademyID = &academy
	}
	request.CreatedAt = fixedResolved.Add(-time.Hour)
	require.NoError(t, f.requests.Create(context.Background(), &request))
	return &request
}

func strPtr(v string) *string {
	return &v
}
