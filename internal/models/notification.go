package models

import "time"

// NotificationType enumerates workflow events delivered to users.
type NotificationType string

const (
	NotificationJoinRequestSubmitted  NotificationType = "JOIN_REQUEST_SUBMITTED"
	NotificationJoinRequestApproved   NotificationType = "JOIN_REQUEST_APPROVED"
	NotificationJoinRequestRejected   NotificationType = "JOIN_REQUEST_REJECTED"
	NotificationJoinRequestReassigned NotificationType = "JOIN_REQUEST_REASSIGNED"
	NotificationJoinRequestCancelled  NotificationType = "JOIN_REQUEST_CANCELLED"
)

// Notification is a fire-and-forget message about a workflow event. Either
// RecipientID or AcademyID is set; the latter fans out to the academy's reviewers.
type Notification struct {
	Type          NotificationType `json:"type"`
	RecipientID   string           `json:"recipientId,omitempty"`
	AcademyID     string           `json:"academyId,omitempty"`
	JoinRequestID string           `json:"joinRequestId"`
	Subject       string           `json:"subject"`
	Body          string           `json:"body"`
	CreatedAt     time.Time        `json:"createdAt"`
}
