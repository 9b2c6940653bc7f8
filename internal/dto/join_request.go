package dto

import "github.com/noah-isme/halaqa-api/internal/models"

// CreateJoinRequestRequest is submitted by a student (or an admin on their behalf).
type CreateJoinRequestRequest struct {
	StudentID string                 `json:"studentId"`
	Type      models.JoinRequestType `json:"type" validate:"required,oneof=SPECIFIC_HALAQA SPECIFIC_TEACHER ANY_TEACHER"`
	HalaqaID  string                 `json:"halaqaId"`
	TeacherID string                 `json:"teacherId"`
	Message   string                 `json:"message" validate:"max=1000"`
}

// ApproveJoinRequestRequest carries the halaqa picked by the reviewer, which
// may differ from the one the student asked for.
type ApproveJoinRequestRequest struct {
	HalaqaID string `json:"halaqaId"`
}

// RespondJoinRequestRequest is the PATCH payload for reject and reassign.
type RespondJoinRequestRequest struct {
	Status   models.JoinRequestStatus `json:"status"`
	Response string                   `json:"response"`
}

// JoinRequestQuery mirrors supported listing filters. Role and UserID let an
// admin look at the list as a given student or teacher sees it.
type JoinRequestQuery struct {
	Status []models.JoinRequestStatus
	Type   models.JoinRequestType
	Role   models.UserRole
	UserID string
	Limit  int
	Offset int
}

// EligibilityResponse reports whether a request can be approved into a halaqa.
type EligibilityResponse struct {
	JoinRequestID string `json:"joinRequestId"`
	HalaqaID      string `json:"halaqaId"`
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason,omitempty"`
	ActiveCount   int    `json:"activeCount"`
	Capacity      *int   `json:"capacity,omitempty"`
}
