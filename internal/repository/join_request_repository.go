package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/halaqa-api/internal/models"
)

const joinRequestColumns = `id, student_id, academy_id, type, target_halaqa_id, target_teacher_id, status,
       message, response, approved_halaqa_id, reviewed_by, created_at, updated_at, resolved_at`

// JoinRequestRepository persists join requests and their workflow status.
type JoinRequestRepository struct {
	db *sqlx.DB
}

// NewJoinRequestRepository constructs the repository.
func NewJoinRequestRepository(db *sqlx.DB) *JoinRequestRepository {
	return &JoinRequestRepository{db: db}
}

// Create inserts a new join request row.
func (r *JoinRequestRepository) Create(ctx context.Context, request *models.JoinRequest) error {
	now := time.Now().UTC()
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.JoinRequestStatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt
	const query = `INSERT INTO join_requests
	(id, student_id, academy_id, type, target_halaqa_id, target_teacher_id, status, message, response,
	 approved_halaqa_id, reviewed_by, created_at, updated_at, resolved_at)
	VALUES (:id, :student_id, :academy_id, :type, :target_halaqa_id, :target_teacher_id, :status, :message, :response,
	 :approved_halaqa_id, :reviewed_by, :created_at, :updated_at, :resolved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create join request: %w", err)
	}
	return nil
}

// FindByID fetches a join request by identifier.
func (r *JoinRequestRepository) FindByID(ctx context.Context, id string) (*models.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = $1`
	var request models.JoinRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListByStudent returns the requests a student has submitted.
func (r *JoinRequestRepository) ListByStudent(ctx context.Context, studentID string) ([]models.JoinRequest, error) {
	return r.List(ctx, models.JoinRequestFilter{StudentID: studentID})
}

// ListByTeacher returns requests addressed to the teacher directly or through
// one of their halaqas, plus ANY_TEACHER requests from the teacher's academy.
func (r *JoinRequestRepository) ListByTeacher(ctx context.Context, teacherID, academyID string) ([]models.JoinRequest, error) {
	return r.List(ctx, models.JoinRequestFilter{TeacherID: teacherID, AcademyID: academyID})
}

// List returns join requests matching the filter (latest first).
func (r *JoinRequestRepository) List(ctx context.Context, filter models.JoinRequestFilter) ([]models.JoinRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + joinRequestColumns + ` FROM join_requests`)

	conditions := make([]string, 0, 4)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		teacherArg := len(args)
		scope := fmt.Sprintf("target_teacher_id = $%d OR target_halaqa_id IN (SELECT id FROM halaqas WHERE teacher_id = $%d)", teacherArg, teacherArg)
		if filter.AcademyID != "" {
			args = append(args, models.JoinRequestTypeAnyTeacher, filter.AcademyID)
			scope += fmt.Sprintf(" OR (type = $%d AND academy_id = $%d)", len(args)-1, len(args))
		}
		conditions = append(conditions, "("+scope+")")
	} else if filter.AcademyID != "" {
		args = append(args, filter.AcademyID)
		conditions = append(conditions, fmt.Sprintf("academy_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.JoinRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	return requests, nil
}

// UpdateJoinRequestParams groups mutable columns for a status transition.
// Expected lists the statuses the row must currently be in.
type UpdateJoinRequestParams struct {
	ID               string
	Expected         []models.JoinRequestStatus
	Status           models.JoinRequestStatus
	Response         *string
	ApprovedHalaqaID *string
	ReviewedBy       string
	ResolvedAt       time.Time
}

// UpdateStatusWithTx applies a compare-and-set status transition. It returns
// sql.ErrNoRows when the row is missing or no longer in an expected status.
// A nil tx runs the statement outside a transaction.
func (r *JoinRequestRepository) UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, params UpdateJoinRequestParams) error {
	expected := make([]string, len(params.Expected))
	for i, status := range params.Expected {
		expected[i] = string(status)
	}
	const query = `UPDATE join_requests
	SET status = $2, response = COALESCE($3, response), approved_halaqa_id = COALESCE($4, approved_halaqa_id),
	    reviewed_by = $5, resolved_at = $6, updated_at = $6
	WHERE id = $1 AND status = ANY($7)`
	result, err := r.execer(tx).ExecContext(ctx, query,
		params.ID,
		params.Status,
		params.Response,
		params.ApprovedHalaqaID,
		params.ReviewedBy,
		params.ResolvedAt,
		pq.Array(expected),
	)
	if err != nil {
		return fmt.Errorf("update join request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check join request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteWithStatus removes a request only while it is in the given status.
func (r *JoinRequestRepository) DeleteWithStatus(ctx context.Context, id string, status models.JoinRequestStatus) error {
	const query = `DELETE FROM join_requests WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("delete join request: %w", err)
	}
	return requireAffected(result, "delete join request")
}

// Delete removes a request regardless of status.
func (r *JoinRequestRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM join_requests WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete join request: %w", err)
	}
	return requireAffected(result, "delete join request")
}

func (r *JoinRequestRepository) execer(tx *sqlx.Tx) sqlx.ExecerContext {
	if tx != nil {
		return tx
	}
	return r.db
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
