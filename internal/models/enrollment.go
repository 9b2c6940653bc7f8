package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive  EnrollmentStatus = "ACTIVE"
	EnrollmentStatusLeft    EnrollmentStatus = "LEFT"
	EnrollmentStatusRemoved EnrollmentStatus = "REMOVED"
)

// Enrollment links a student to a halaqa.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"studentId"`
	HalaqaID      string           `db:"halaqa_id" json:"halaqaId"`
	JoinRequestID *string          `db:"join_request_id" json:"joinRequestId,omitempty"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
	LeftAt        *time.Time       `db:"left_at" json:"leftAt,omitempty"`
}

// RosterEntry is an active enrollment joined with the student's directory data.
type RosterEntry struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollmentId"`
	StudentID    string    `db:"student_id" json:"studentId"`
	StudentName  string    `db:"student_name" json:"studentName"`
	StudentEmail string    `db:"student_email" json:"studentEmail"`
	JoinedAt     time.Time `db:"joined_at" json:"joinedAt"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	HalaqaID  string
	TeacherID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}
