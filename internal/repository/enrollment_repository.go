package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/halaqa-api/internal/models"
)

const enrollmentColumns = `id, student_id, halaqa_id, join_request_id, status, created_at, left_at`

// EnrollmentRepository handles persistence of halaqa enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := `FROM enrollments e`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.HalaqaID != "" {
		conditions = append(conditions, fmt.Sprintf("e.halaqa_id = $%d", len(args)+1))
		args = append(args, filter.HalaqaID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("e.halaqa_id IN (SELECT id FROM halaqas WHERE teacher_id = $%d)", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.halaqa_id, e.join_request_id, e.status, e.created_at, e.left_at
        %s ORDER BY e.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindActive returns the ACTIVE enrollment for a (student, halaqa) pair.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, halaqaID string) (*models.Enrollment, error) {
	return r.findActive(ctx, r.db, studentID, halaqaID)
}

// CountActive returns the number of ACTIVE enrollments in a halaqa.
func (r *EnrollmentRepository) CountActive(ctx context.Context, halaqaID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE halaqa_id = $1 AND status = $2`
	var total int
	if err := r.db.GetContext(ctx, &total, query, halaqaID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return total, nil
}

// EnsureActiveWithTx inserts an ACTIVE enrollment unless one already exists for
// the pair, relying on the enrollments_active_uniq partial index. It returns the
// stored row and whether it was created by this call. A nil tx runs on the pool.
func (r *EnrollmentRepository) EnsureActiveWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) (*models.Enrollment, bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	enrollment.Status = models.EnrollmentStatusActive

	q := r.queryer(tx)
	const query = `INSERT INTO enrollments (id, student_id, halaqa_id, join_request_id, status, created_at, left_at)
VALUES ($1, $2, $3, $4, $5, $6, NULL)
ON CONFLICT (student_id, halaqa_id) WHERE status = 'ACTIVE' DO NOTHING
RETURNING ` + enrollmentColumns
	var stored models.Enrollment
	err := sqlx.GetContext(ctx, q, &stored, query,
		enrollment.ID,
		enrollment.StudentID,
		enrollment.HalaqaID,
		enrollment.JoinRequestID,
		enrollment.Status,
		enrollment.CreatedAt,
	)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("ensure active enrollment: %w", err)
	}
	existing, err := r.findActive(ctx, q, enrollment.StudentID, enrollment.HalaqaID)
	if err != nil {
		return nil, false, fmt.Errorf("load existing enrollment: %w", err)
	}
	return existing, false, nil
}

// UpdateStatus updates status and left_at for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, leftAt *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, left_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, status, leftAt, models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return requireAffected(result, "update enrollment status")
}

// ListRoster returns the active members of a halaqa with their directory data.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, halaqaID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, u.full_name AS student_name, u.email AS student_email, e.created_at AS joined_at
        FROM enrollments e
        JOIN users u ON u.id = e.student_id
        WHERE e.halaqa_id = $1 AND e.status = $2
        ORDER BY u.full_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, halaqaID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list halaqa roster: %w", err)
	}
	return roster, nil
}

func (r *EnrollmentRepository) findActive(ctx context.Context, q sqlx.QueryerContext, studentID, halaqaID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND halaqa_id = $2 AND status = $3 LIMIT 1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, q, &enrollment, query, studentID, halaqaID, models.EnrollmentStatusActive); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) queryer(tx *sqlx.Tx) sqlx.QueryerContext {
	if tx != nil {
		return tx
	}
	return r.db
}
