package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/halaqa-api/internal/dto"
	"github.com/noah-isme/halaqa-api/internal/models"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
	"github.com/noah-isme/halaqa-api/pkg/export"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	EnsureActiveWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) (*models.Enrollment, bool, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, leftAt *time.Time) error
	ListRoster(ctx context.Context, halaqaID string) ([]models.RosterEntry, error)
}

// EnrollmentServiceConfig tunes projection semantics.
type EnrollmentServiceConfig struct {
	// StrictProjection makes Project fail with DUPLICATE_ENROLLMENT instead of
	// returning an existing ACTIVE enrollment.
	StrictProjection bool
}

// EnrollmentService projects approvals into enrollments and manages membership.
type EnrollmentService struct {
	repo        enrollmentRepository
	halaqas     halaqaReader
	eligibility *EligibilityService
	renderer    *export.Renderer
	audit       auditLogger
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	config      EnrollmentServiceConfig
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, halaqas halaqaReader, eligibility *EligibilityService, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EnrollmentServiceConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		halaqas:     halaqas,
		eligibility: eligibility,
		renderer:    export.NewRenderer(),
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		config:      cfg,
	}
}

// Project materialises the enrollment side effect of an approval inside tx.
// It is idempotent on (student, halaqa) unless strict projection is enabled.
func (s *EnrollmentService) Project(ctx context.Context, tx *sqlx.Tx, studentID, halaqaID string, joinRequestID *string) (*models.Enrollment, bool, error) {
	return s.project(ctx, tx, &models.Enrollment{StudentID: studentID, HalaqaID: halaqaID, JoinRequestID: joinRequestID}, s.config.StrictProjection)
}

// Idempotent reports whether Project reuses an existing ACTIVE enrollment.
func (s *EnrollmentService) Idempotent() bool {
	return !s.config.StrictProjection
}

func (s *EnrollmentService) project(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, strict bool) (*models.Enrollment, bool, error) {
	stored, created, err := s.repo.EnsureActiveWithTx(ctx, tx, enrollment)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to project enrollment")
	}
	if !created && strict {
		return nil, false, appErrors.ErrDuplicateEnrollment
	}
	s.metrics.RecordProjection(created)
	return stored, created, nil
}

// SelfEnroll enrolls a student directly into a GENERAL halaqa.
func (s *EnrollmentService) SelfEnroll(ctx context.Context, req dto.SelfEnrollRequest, actor models.Actor) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		studentID = actor.UserID
	}
	if err := Authorize(actor, ActionSelfEnroll, Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	if studentID == actor.UserID && actor.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required when enrolling on behalf of a student")
	}

	halaqa, err := s.eligibility.Check(ctx, studentID, req.HalaqaID)
	if err != nil {
		return nil, err
	}
	if halaqa.Type != models.HalaqaTypeGeneral {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "halaqa requires an approved join request")
	}

	enrollment, _, err := s.project(ctx, nil, &models.Enrollment{StudentID: studentID, HalaqaID: halaqa.ID}, true)
	if err != nil {
		return nil, err
	}
	emitAudit(ctx, s.audit, s.logger, "enrollment-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionEnrollmentCreate,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		NewValues:  auditSnapshot(enrollment),
	})
	return enrollment, nil
}

// Unenroll ends an ACTIVE enrollment. Students leaving their own enrollment
// produce LEFT; removals by the halaqa's teacher or an admin produce REMOVED.
func (s *EnrollmentService) Unenroll(ctx context.Context, id string, actor models.Actor) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	resource := Resource{Enrollment: enrollment}
	if actor.Role == models.RoleTeacher {
		halaqa, err := s.halaqas.FindByID(ctx, enrollment.HalaqaID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load halaqa")
		}
		resource.Halaqa = halaqa
	}
	if err := Authorize(actor, ActionUnenroll, resource); err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment already inactive")
	}

	status := models.EnrollmentStatusRemoved
	if actor.Role == models.RoleStudent {
		status = models.EnrollmentStatusLeft
	}
	leftAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, status, &leftAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment already inactive")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	before := *enrollment
	enrollment.Status = status
	enrollment.LeftAt = &leftAt
	emitAudit(ctx, s.audit, s.logger, "enrollment-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionEnrollmentEnd,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		OldValues:  auditSnapshot(before),
		NewValues:  auditSnapshot(enrollment),
	})
	return enrollment, nil
}

// List returns enrollments visible to the actor: students see their own,
// teachers see their halaqas, admins see everything the filter selects.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, actor models.Actor) ([]models.Enrollment, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	case models.RoleTeacher:
		filter.TeacherID = actor.UserID
	case models.RoleAdmin:
	default:
		return nil, nil, appErrors.ErrForbidden
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginate(filter.Page, filter.PageSize, total), nil
}

// Roster returns the active members of a halaqa.
func (s *EnrollmentService) Roster(ctx context.Context, halaqaID string, actor models.Actor) (*models.Halaqa, []models.RosterEntry, error) {
	halaqa, err := s.halaqas.FindByID(ctx, halaqaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "halaqa not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load halaqa")
	}
	if err := Authorize(actor, ActionViewRoster, Resource{Halaqa: halaqa}); err != nil {
		return nil, nil, err
	}
	roster, err := s.repo.ListRoster(ctx, halaqaID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if roster == nil {
		roster = []models.RosterEntry{}
	}
	return halaqa, roster, nil
}

// ExportRoster renders the roster as a downloadable CSV or PDF document.
func (s *EnrollmentService) ExportRoster(ctx context.Context, halaqaID string, format export.Format, actor models.Actor) (*dto.RosterExport, error) {
	halaqa, roster, err := s.Roster(ctx, halaqaID, actor)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{
		Title:   fmt.Sprintf("%s roster", halaqa.Name),
		Headers: []string{"No", "Student", "Email", "Joined"},
		Rows:    make([]map[string]string, 0, len(roster)),
	}
	for i, entry := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"No":      fmt.Sprintf("%d", i+1),
			"Student": entry.StudentName,
			"Email":   entry.StudentEmail,
			"Joined":  entry.JoinedAt.UTC().Format("2006-01-02"),
		})
	}
	content, err := s.renderer.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &dto.RosterExport{
		Filename:    fmt.Sprintf("roster-%s.%s", halaqa.ID, format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}
