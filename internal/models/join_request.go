package models

import "time"

// JoinRequestType describes what the student asked to join.
type JoinRequestType string

const (
	JoinRequestTypeSpecificHalaqa  JoinRequestType = "SPECIFIC_HALAQA"
	JoinRequestTypeSpecificTeacher JoinRequestType = "SPECIFIC_TEACHER"
	JoinRequestTypeAnyTeacher      JoinRequestType = "ANY_TEACHER"
)

// Valid reports whether the type is one of the supported values.
func (t JoinRequestType) Valid() bool {
	switch t {
	case JoinRequestTypeSpecificHalaqa, JoinRequestTypeSpecificTeacher, JoinRequestTypeAnyTeacher:
		return true
	}
	return false
}

// JoinRequestStatus captures workflow states for join requests.
type JoinRequestStatus string

const (
	JoinRequestStatusPending    JoinRequestStatus = "PENDING"
	JoinRequestStatusApproved   JoinRequestStatus = "APPROVED"
	JoinRequestStatusRejected   JoinRequestStatus = "REJECTED"
	JoinRequestStatusReassigned JoinRequestStatus = "REASSIGNED"
)

// Valid reports whether the status is a known workflow state.
func (s JoinRequestStatus) Valid() bool {
	switch s {
	case JoinRequestStatusPending, JoinRequestStatusApproved, JoinRequestStatusRejected, JoinRequestStatusReassigned:
		return true
	}
	return false
}

// JoinRequest is a student's request to be admitted to a halaqa.
type JoinRequest struct {
	ID               string            `db:"id" json:"id"`
	StudentID        string            `db:"student_id" json:"studentId"`
	AcademyID        *string           `db:"academy_id" json:"academyId,omitempty"`
	Type             JoinRequestType   `db:"type" json:"type"`
	TargetHalaqaID   *string           `db:"target_halaqa_id" json:"targetHalaqaId,omitempty"`
	TargetTeacherID  *string           `db:"target_teacher_id" json:"targetTeacherId,omitempty"`
	Status           JoinRequestStatus `db:"status" json:"status"`
	Message          *string           `db:"message" json:"message,omitempty"`
	Response         *string           `db:"response" json:"response,omitempty"`
	ApprovedHalaqaID *string           `db:"approved_halaqa_id" json:"approvedHalaqaId,omitempty"`
	ReviewedBy       *string           `db:"reviewed_by" json:"reviewedBy,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updatedAt"`
	ResolvedAt       *time.Time        `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// JoinRequestFilter constrains listing queries. TeacherID switches to the
// reviewer view: requests addressed to the teacher or open to their academy.
type JoinRequestFilter struct {
	StudentID string
	TeacherID string
	AcademyID string
	Status    []JoinRequestStatus
	Type      JoinRequestType
	Limit     int
	Offset    int
}
