package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/halaqa-api/internal/models"
)

var joinRequestColumnNames = []string{"id", "student_id", "academy_id", "type", "target_halaqa_id", "target_teacher_id", "status",
	"message", "response", "approved_halaqa_id", "reviewed_by", "created_at", "updated_at", "resolved_at"}

func newJoinRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestJoinRequestRepositoryCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newJoinRequestRepoMock(t)
	defer cleanup()
	repo := NewJoinRequestRepository(db)

	mock.ExpectExec("INSERT INTO join_requests").WillReturnResult(sqlmock.NewResult(1, 1))

	halaqaID := "h-1"
	request := &models.JoinRequest{StudentID: "stu-1", Type: models.JoinRequestTypeSpecificHalaqa, TargetHalaqaID: &halaqaID}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.JoinRequestStatusPending, request.Status)
	assert.False(t, request.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newJoinRequestRepoMock(t)
	defer cleanup()
	repo := NewJoinRequestRepository(db)

	mock.ExpectQuery("FROM join_requests WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryListByTeacherScopesAcademy(t *testing.T) {
	db, mock, cleanup := newJoinRequestRepoMock(t)
	defer cleanup()
	repo := NewJoinRequestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(joinRequestColumnNames).
		AddRow("jr-1", "stu-1", "ac-1", models.JoinRequestTypeAnyTeacher, nil, nil, models.JoinRequestStatusPending,
			nil, nil, nil, nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (target_teacher_id = $1 OR target_halaqa_id IN (SELECT id FROM halaqas WHERE teacher_id = $1) OR (type = $2 AND academy_id = $3)) ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("t-1", models.JoinRequestTypeAnyTeacher, "ac-1").
		WillReturnRows(rows)

	requests, err := repo.ListByTeacher(context.Background(), "t-1", "ac-1")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.JoinRequestTypeAnyTeacher, requests[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryListStatusFilter(t *testing.T) {
	db, mock, cleanup := newJoinRequestRepoMock(t)
	defer cleanup()
	repo := NewJoinRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 10 OFFSET 5")).
		WillReturnRows(sqlmock.NewRows(joinRequestColumnNames))

	requests, err := repo.List(context.Background(), models.JoinRequestFilter{
		StudentID: "stu-1",
		Status:    []models.JoinRequestStatus{models.JoinRequestStatusPending, models.JoinRequestStatusReassigned},
		Limit:     10,
		Offset:    5,
	})
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryUpdateStatusCompareAndSet(t *testing.T) {
	db, mock, cleanup := newJoinRequestRepoMock(t)
	defer cleanup()
	repo := NewJoinRequestRepository(db)

	mock.ExpectExec("UPDATE join_requests").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE join_requests").WillReturnResult(sqlmock.NewResult(0, 0))

	params := UpdateJoinRequestParams{
		ID:         "jr-1",
		Expected:   []models.JoinRequestStatus{models.JoinRequestStatusPending},
		Status:     models.JoinRequestStatusApproved,
		ReviewedBy: "t-1",
		ResolvedAt: time.Now(),
	}
	require.NoError(t, repo.UpdateStatusWithTx(context.Background(), nil, params))
	assert.ErrorIs(t, repo.UpdateStatusWithTx(context.Background(), nil, params), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryUpdateStatusInTransaction(t *testing.T) {
	db, mock, cleanup := newJoinRequestRepoMock(t)
	defer cleanup()
	repo := NewJoinRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE join_requests").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	reason := "full"
	require.NoError(t, repo.UpdateStatusWithTx(context.Background(), tx, UpdateJoinRequestParams{
		ID:         "jr-1",
		Expected:   []models.JoinRequestStatus{models.JoinRequestStatusPending},
		Status:     models.JoinRequestStatusRejected,
		Response:   &reason,
		ReviewedBy: "t-1",
		ResolvedAt: time.Now(),
	}))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryDeleteWithStatus(t *testing.T) {
	db, mock, cleanup := newJoinRequestRepoMock(t)
	defer cleanup()
	repo := NewJoinRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM join_requests WHERE id = $1 AND status = $2")).
		WithArgs("jr-1", models.JoinRequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteWithStatus(context.Background(), "jr-1", models.JoinRequestStatusPending)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
