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
	"github.com/noah-isme/halaqa-api/internal/repository"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
)

type joinRequestStore interface {
	Create(ctx context.Context, request *models.JoinRequest) error
	FindByID(ctx context.Context, id string) (*models.JoinRequest, error)
	List(ctx context.Context, filter models.JoinRequestFilter) ([]models.JoinRequest, error)
	UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, params repository.UpdateJoinRequestParams) error
	DeleteWithStatus(ctx context.Context, id string, status models.JoinRequestStatus) error
	Delete(ctx context.Context, id string) error
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type enrollmentProjector interface {
	Project(ctx context.Context, tx *sqlx.Tx, studentID, halaqaID string, joinRequestID *string) (*models.Enrollment, bool, error)
	Idempotent() bool
}

type workflowNotifier interface {
	Notify(n models.Notification)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

const auditSourceJoinRequest = "join-request-service"

// errTransitionLost marks a compare-and-set that matched no row.
var errTransitionLost = errors.New("join request status changed concurrently")

// JoinRequestService is the workflow engine for join requests. Transitions
// are compare-and-set on the stored status, so concurrent reviewers cannot
// both succeed with conflicting outcomes.
type JoinRequestService struct {
	repo        joinRequestStore
	users       userDirectory
	halaqas     halaqaReader
	eligibility *EligibilityService
	projector   enrollmentProjector
	tx          txProvider
	audit       auditLogger
	notifier    workflowNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	listLimit   int
}

// JoinRequestServiceOption configures the service.
type JoinRequestServiceOption func(*JoinRequestService)

// WithJoinRequestTx runs approval transition and projection in one transaction.
func WithJoinRequestTx(tx txProvider) JoinRequestServiceOption {
	return func(s *JoinRequestService) { s.tx = tx }
}

// WithJoinRequestAudit records audit rows for every transition.
func WithJoinRequestAudit(audit auditLogger) JoinRequestServiceOption {
	return func(s *JoinRequestService) { s.audit = audit }
}

// WithJoinRequestNotifier sets the fire-and-forget notifier.
func WithJoinRequestNotifier(notifier workflowNotifier) JoinRequestServiceOption {
	return func(s *JoinRequestService) { s.notifier = notifier }
}

// WithJoinRequestMetrics sets the metrics sink.
func WithJoinRequestMetrics(metrics *MetricsService) JoinRequestServiceOption {
	return func(s *JoinRequestService) { s.metrics = metrics }
}

// WithJoinRequestValidator overrides the payload validator.
func WithJoinRequestValidator(validate *validator.Validate) JoinRequestServiceOption {
	return func(s *JoinRequestService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// WithJoinRequestListLimit sets the default page size for listings.
func WithJoinRequestListLimit(limit int) JoinRequestServiceOption {
	return func(s *JoinRequestService) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

// WithJoinRequestClock overrides the time source.
func WithJoinRequestClock(now func() time.Time) JoinRequestServiceOption {
	return func(s *JoinRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewJoinRequestService constructs the workflow engine.
func NewJoinRequestService(repo joinRequestStore, users userDirectory, halaqas halaqaReader, eligibility *EligibilityService, projector enrollmentProjector, logger *zap.Logger, opts ...JoinRequestServiceOption) *JoinRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &JoinRequestService{
		repo:        repo,
		users:       users,
		halaqas:     halaqas,
		eligibility: eligibility,
		projector:   projector,
		validator:   validator.New(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		listLimit:   50,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit creates a PENDING request. Students submit for themselves; admins
// submit on behalf of a student named in the payload.
func (s *JoinRequestService) Submit(ctx context.Context, req dto.CreateJoinRequestRequest, actor models.Actor) (*models.JoinRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join request payload")
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		studentID = actor.UserID
	}
	if err := Authorize(actor, ActionSubmitJoinRequest, Resource{StudentID: studentID}); err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "join requests can only be submitted for students")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student account is inactive")
	}

	request := &models.JoinRequest{
		StudentID: student.ID,
		AcademyID: student.AcademyID,
		Type:      req.Type,
		Status:    models.JoinRequestStatusPending,
		Message:   optionalText(req.Message),
	}
	target, err := s.resolveTarget(ctx, req, request)
	if err != nil {
		return nil, err
	}
	request.CreatedAt = s.now()

	if err := s.repo.Create(ctx, request); err != nil {
		s.metrics.RecordTransition("submit", models.JoinRequestStatusPending, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create join request")
	}
	s.metrics.RecordTransition("submit", models.JoinRequestStatusPending, nil)

	emitAudit(ctx, s.audit, s.logger, auditSourceJoinRequest, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionJoinRequestSubmit,
		Resource:   "join_request",
		ResourceID: &request.ID,
		NewValues:  auditSnapshot(request),
	})
	s.notifyReviewers(request, target, models.NotificationJoinRequestSubmitted,
		"New join request", fmt.Sprintf("A student submitted a %s join request.", request.Type))
	return request, nil
}

// resolveTarget validates the type-dependent target fields and fills them in.
func (s *JoinRequestService) resolveTarget(ctx context.Context, req dto.CreateJoinRequestRequest, request *models.JoinRequest) (*models.Halaqa, error) {
	halaqaID := strings.TrimSpace(req.HalaqaID)
	teacherID := strings.TrimSpace(req.TeacherID)

	switch req.Type {
	case models.JoinRequestTypeSpecificHalaqa:
		if halaqaID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "halaqaId is required for SPECIFIC_HALAQA requests")
		}
		if teacherID != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is not allowed for SPECIFIC_HALAQA requests")
		}
		halaqa, err := s.halaqas.FindByID(ctx, halaqaID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "halaqa not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load halaqa")
		}
		request.TargetHalaqaID = &halaqa.ID
		if request.AcademyID == nil {
			request.AcademyID = &halaqa.AcademyID
		}
		return halaqa, nil
	case models.JoinRequestTypeSpecificTeacher:
		if teacherID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required for SPECIFIC_TEACHER requests")
		}
		if halaqaID != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "halaqaId is not allowed for SPECIFIC_TEACHER requests")
		}
		if err := s.requireTeacher(ctx, teacherID); err != nil {
			return nil, err
		}
		request.TargetTeacherID = &teacherID
	case models.JoinRequestTypeAnyTeacher:
		if halaqaID != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "halaqaId is not allowed for ANY_TEACHER requests")
		}
		if teacherID != "" {
			if err := s.requireTeacher(ctx, teacherID); err != nil {
				return nil, err
			}
			request.TargetTeacherID = &teacherID
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported join request type")
	}
	return nil, nil
}

func (s *JoinRequestService) requireTeacher(ctx context.Context, teacherID string) error {
	teacher, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return nil
}

// Approve moves a request to APPROVED and enrolls the student into halaqaID.
// Replaying an approval with the same halaqa returns the approved request.
func (s *JoinRequestService) Approve(ctx context.Context, id, halaqaID string, actor models.Actor) (*models.JoinRequest, error) {
	halaqaID = strings.TrimSpace(halaqaID)
	if halaqaID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "halaqaId is required")
	}
	request, target, err := s.loadWithTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, ActionApproveJoinRequest, Resource{Request: request, Halaqa: target}); err != nil {
		return nil, err
	}
	if approvedInto(request, halaqaID) {
		return request, nil
	}
	if err := actionable(request, actor); err != nil {
		return nil, err
	}

	decision, err := s.eligibility.Evaluate(ctx, request.StudentID, halaqaID)
	if err != nil {
		s.metrics.RecordTransition("approve", models.JoinRequestStatusApproved, err)
		return nil, err
	}
	// An idempotent projector reuses the ACTIVE enrollment, so a duplicate
	// only blocks approval when projection is strict.
	absorbed := decision.Reason == EligibilityDuplicateEnrollment && s.projector.Idempotent()
	if err := decision.Err(); err != nil && !absorbed {
		if errors.Is(err, appErrors.ErrDuplicateEnrollment) {
			return s.replayOr(ctx, id, halaqaID, err)
		}
		s.metrics.RecordTransition("approve", models.JoinRequestStatusApproved, err)
		return nil, err
	}
	halaqa := decision.Halaqa
	if err := Authorize(actor, ActionEnrollIntoHalaqa, Resource{Halaqa: halaqa}); err != nil {
		return nil, err
	}

	before := *request
	resolvedAt := s.now()
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.UpdateStatusWithTx(ctx, tx, repository.UpdateJoinRequestParams{
			ID:               request.ID,
			Expected:         expectedStatuses(actor),
			Status:           models.JoinRequestStatusApproved,
			ApprovedHalaqaID: &halaqa.ID,
			ReviewedBy:       actor.UserID,
			ResolvedAt:       resolvedAt,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errTransitionLost
			}
			return err
		}
		_, _, err := s.projector.Project(ctx, tx, request.StudentID, halaqa.ID, &request.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, errTransitionLost) {
			return s.replayOr(ctx, id, halaqaID, appErrors.ErrInvalidState)
		}
		if errors.Is(err, appErrors.ErrDuplicateEnrollment) {
			return s.replayOr(ctx, id, halaqaID, err)
		}
		s.metrics.RecordTransition("approve", models.JoinRequestStatusApproved, err)
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve join request")
	}
	s.metrics.RecordTransition("approve", models.JoinRequestStatusApproved, nil)

	request.Status = models.JoinRequestStatusApproved
	request.ApprovedHalaqaID = &halaqa.ID
	request.ReviewedBy = &actor.UserID
	request.ResolvedAt = &resolvedAt
	request.UpdatedAt = resolvedAt

	emitAudit(ctx, s.audit, s.logger, auditSourceJoinRequest, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionJoinRequestApprove,
		Resource:   "join_request",
		ResourceID: &request.ID,
		OldValues:  auditSnapshot(before),
		NewValues:  auditSnapshot(request),
	})
	s.notifyStudent(request, models.NotificationJoinRequestApproved, "Join request approved",
		fmt.Sprintf("You have been enrolled in %s.", halaqa.Name))
	return request, nil
}

// replayOr reloads the request after a lost race; if it ended up approved into
// the same halaqa the approval is treated as already done, otherwise cause is returned.
func (s *JoinRequestService) replayOr(ctx context.Context, id, halaqaID string, cause error) (*models.JoinRequest, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err == nil && approvedInto(current, halaqaID) {
		return current, nil
	}
	s.metrics.RecordTransition("approve", models.JoinRequestStatusApproved, cause)
	return nil, cause
}

// Reject moves a request to REJECTED with a mandatory reason.
func (s *JoinRequestService) Reject(ctx context.Context, id, reason string, actor models.Actor) (*models.JoinRequest, error) {
	return s.resolve(ctx, id, reason, actor, models.JoinRequestStatusRejected)
}

// Reassign defers a request to admin review; teachers only.
func (s *JoinRequestService) Reassign(ctx context.Context, id, reason string, actor models.Actor) (*models.JoinRequest, error) {
	return s.resolve(ctx, id, reason, actor, models.JoinRequestStatusReassigned)
}

// Respond dispatches the PATCH payload to Reject or Reassign.
func (s *JoinRequestService) Respond(ctx context.Context, id string, req dto.RespondJoinRequestRequest, actor models.Actor) (*models.JoinRequest, error) {
	switch models.JoinRequestStatus(strings.ToUpper(strings.TrimSpace(string(req.Status)))) {
	case models.JoinRequestStatusRejected:
		return s.Reject(ctx, id, req.Response, actor)
	case models.JoinRequestStatusReassigned:
		return s.Reassign(ctx, id, req.Response, actor)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be REJECTED or REASSIGNED; use the approve endpoint to approve")
	}
}

func (s *JoinRequestService) resolve(ctx context.Context, id, reason string, actor models.Actor, status models.JoinRequestStatus) (*models.JoinRequest, error) {
	operation, action, auditAction := "reject", ActionRejectJoinRequest, models.AuditActionJoinRequestReject
	if status == models.JoinRequestStatusReassigned {
		operation, action, auditAction = "reassign", ActionReassignJoinRequest, models.AuditActionJoinRequestReassign
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required")
	}
	request, target, err := s.loadWithTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, action, Resource{Request: request, Halaqa: target}); err != nil {
		return nil, err
	}
	if err := actionable(request, actor); err != nil {
		return nil, err
	}

	before := *request
	resolvedAt := s.now()
	err = s.repo.UpdateStatusWithTx(ctx, nil, repository.UpdateJoinRequestParams{
		ID:         request.ID,
		Expected:   expectedStatuses(actor),
		Status:     status,
		Response:   &reason,
		ReviewedBy: actor.UserID,
		ResolvedAt: resolvedAt,
	})
	s.metrics.RecordTransition(operation, status, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidState
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s join request", operation))
	}

	request.Status = status
	request.Response = &reason
	request.ReviewedBy = &actor.UserID
	request.ResolvedAt = &resolvedAt
	request.UpdatedAt = resolvedAt

	emitAudit(ctx, s.audit, s.logger, auditSourceJoinRequest, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     auditAction,
		Resource:   "join_request",
		ResourceID: &request.ID,
		OldValues:  auditSnapshot(before),
		NewValues:  auditSnapshot(request),
	})
	if status == models.JoinRequestStatusReassigned {
		s.notifyStudent(request, models.NotificationJoinRequestReassigned, "Join request forwarded", "Your join request was forwarded to the academy administration.")
		if request.AcademyID != nil {
			s.notify(models.Notification{
				Type:          models.NotificationJoinRequestReassigned,
				AcademyID:     *request.AcademyID,
				JoinRequestID: request.ID,
				Subject:       "Join request needs admin review",
				Body:          reason,
			})
		}
	} else {
		s.notifyStudent(request, models.NotificationJoinRequestRejected, "Join request declined", reason)
	}
	return request, nil
}

// Cancel deletes a PENDING request on behalf of the student who submitted it.
func (s *JoinRequestService) Cancel(ctx context.Context, id string, actor models.Actor) error {
	request, target, err := s.loadWithTarget(ctx, id)
	if err != nil {
		return err
	}
	if err := Authorize(actor, ActionCancelJoinRequest, Resource{Request: request}); err != nil {
		return err
	}
	if request.Status != models.JoinRequestStatusPending {
		return appErrors.ErrInvalidState
	}
	err = s.repo.DeleteWithStatus(ctx, request.ID, models.JoinRequestStatusPending)
	s.metrics.RecordTransition("cancel", request.Status, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrInvalidState
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel join request")
	}

	emitAudit(ctx, s.audit, s.logger, auditSourceJoinRequest, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionJoinRequestCancel,
		Resource:   "join_request",
		ResourceID: &request.ID,
		OldValues:  auditSnapshot(request),
	})
	s.notifyReviewers(request, target, models.NotificationJoinRequestCancelled, "Join request cancelled", "A student withdrew their join request.")
	return nil
}

// Delete removes a request in any state; admins only.
func (s *JoinRequestService) Delete(ctx context.Context, id string, actor models.Actor) error {
	if err := Authorize(actor, ActionDeleteJoinRequest, Resource{}); err != nil {
		return err
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "join request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete join request")
	}
	emitAudit(ctx, s.audit, s.logger, auditSourceJoinRequest, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionJoinRequestDelete,
		Resource:   "join_request",
		ResourceID: &request.ID,
		OldValues:  auditSnapshot(request),
	})
	return nil
}

// Get returns a request visible to the actor.
func (s *JoinRequestService) Get(ctx context.Context, id string, actor models.Actor) (*models.JoinRequest, error) {
	request, target, err := s.loadWithTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, ActionViewJoinRequest, Resource{Request: request, Halaqa: target}); err != nil {
		return nil, err
	}
	return request, nil
}

// List returns requests scoped to the actor. Students see their own
// requests; teachers see requests addressed to them or open to their
// academy; admins see all, optionally narrowed to another user's view.
func (s *JoinRequestService) List(ctx context.Context, query dto.JoinRequestQuery, actor models.Actor) ([]models.JoinRequest, error) {
	filter := models.JoinRequestFilter{
		Status: query.Status,
		Type:   query.Type,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = s.listLimit
	}
	if query.Type != "" && !query.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported join request type")
	}

	role, userID, academyID := actor.Role, actor.UserID, actor.AcademyID
	if actor.Role == models.RoleAdmin {
		role, userID, academyID = query.Role, query.UserID, ""
		if userID != "" {
			user, err := s.users.FindByID(ctx, userID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
			}
			if role == "" {
				role = user.Role
			}
			if user.AcademyID != nil {
				academyID = *user.AcademyID
			}
		}
	} else if query.UserID != "" && query.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot list another user's join requests")
	}

	switch role {
	case models.RoleStudent:
		filter.StudentID = userID
	case models.RoleTeacher:
		filter.TeacherID = userID
		filter.AcademyID = academyID
	case models.RoleAdmin, "":
		if actor.Role != models.RoleAdmin {
			return nil, appErrors.ErrForbidden
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported role filter")
	}
	if (role == models.RoleStudent || role == models.RoleTeacher) && userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "userId is required with a role filter")
	}

	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list join requests")
	}
	if requests == nil {
		requests = []models.JoinRequest{}
	}
	return requests, nil
}

// Eligibility previews whether the request could be approved into halaqaID,
// defaulting to the requested halaqa.
func (s *JoinRequestService) Eligibility(ctx context.Context, id, halaqaID string, actor models.Actor) (*dto.EligibilityResponse, error) {
	request, target, err := s.loadWithTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.ErrForbidden
	}
	if err := Authorize(actor, ActionViewJoinRequest, Resource{Request: request, Halaqa: target}); err != nil {
		return nil, err
	}
	halaqaID = strings.TrimSpace(halaqaID)
	if halaqaID == "" && request.TargetHalaqaID != nil {
		halaqaID = *request.TargetHalaqaID
	}
	if halaqaID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "halaqaId is required")
	}

	decision, err := s.eligibility.Evaluate(ctx, request.StudentID, halaqaID)
	if err != nil {
		return nil, err
	}
	resp := &dto.EligibilityResponse{
		JoinRequestID: request.ID,
		HalaqaID:      halaqaID,
		Eligible:      decision.Eligible,
		Reason:        string(decision.Reason),
		ActiveCount:   decision.ActiveCount,
	}
	if decision.Halaqa != nil {
		resp.Capacity = decision.Halaqa.Capacity
	}
	return resp, nil
}

func (s *JoinRequestService) load(ctx context.Context, id string) (*models.JoinRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "join request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load join request")
	}
	return request, nil
}

// loadWithTarget loads the request and, for SPECIFIC_HALAQA requests, the
// target halaqa that decides teacher ownership. A vanished halaqa yields nil.
func (s *JoinRequestService) loadWithTarget(ctx context.Context, id string) (*models.JoinRequest, *models.Halaqa, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if request.Type != models.JoinRequestTypeSpecificHalaqa || request.TargetHalaqaID == nil {
		return request, nil, nil
	}
	halaqa, err := s.halaqas.FindByID(ctx, *request.TargetHalaqaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return request, nil, nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target halaqa")
	}
	return request, halaqa, nil
}

func (s *JoinRequestService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if s.tx == nil {
		return fn(nil)
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func (s *JoinRequestService) notifyStudent(request *models.JoinRequest, kind models.NotificationType, subject, body string) {
	s.notify(models.Notification{Type: kind, RecipientID: request.StudentID, JoinRequestID: request.ID, Subject: subject, Body: body})
}

// notifyReviewers addresses the teacher a request targets, or the academy
// channel when no single teacher is addressed.
func (s *JoinRequestService) notifyReviewers(request *models.JoinRequest, target *models.Halaqa, kind models.NotificationType, subject, body string) {
	n := models.Notification{Type: kind, JoinRequestID: request.ID, Subject: subject, Body: body}
	switch {
	case request.Type == models.JoinRequestTypeSpecificHalaqa && target != nil:
		n.RecipientID = target.TeacherID
	case request.Type == models.JoinRequestTypeSpecificTeacher && request.TargetTeacherID != nil:
		n.RecipientID = *request.TargetTeacherID
	case request.AcademyID != nil:
		n.AcademyID = *request.AcademyID
	default:
		return
	}
	s.notify(n)
}

func (s *JoinRequestService) notify(n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(n)
}

// actionable enforces the state machine: PENDING requests are open to their
// reviewers, REASSIGNED requests only to admins, everything else is closed.
func actionable(request *models.JoinRequest, actor models.Actor) error {
	switch request.Status {
	case models.JoinRequestStatusPending:
		return nil
	case models.JoinRequestStatusReassigned:
		if actor.Role == models.RoleAdmin {
			return nil
		}
	}
	return appErrors.ErrInvalidState
}

func expectedStatuses(actor models.Actor) []models.JoinRequestStatus {
	if actor.Role == models.RoleAdmin {
		return []models.JoinRequestStatus{models.JoinRequestStatusPending, models.JoinRequestStatusReassigned}
	}
	return []models.JoinRequestStatus{models.JoinRequestStatusPending}
}

func approvedInto(request *models.JoinRequest, halaqaID string) bool {
	return request != nil &&
		request.Status == models.JoinRequestStatusApproved &&
		request.ApprovedHalaqaID != nil &&
		*request.ApprovedHalaqaID == halaqaID
}

func optionalText(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
