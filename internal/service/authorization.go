package service

import (
	"github.com/noah-isme/halaqa-api/internal/models"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
)

// Action names a capability checked by Authorize.
type Action string

const (
	ActionSubmitJoinRequest   Action = "join_request:submit"
	ActionViewJoinRequest     Action = "join_request:view"
	ActionApproveJoinRequest  Action = "join_request:approve"
	ActionRejectJoinRequest   Action = "join_request:reject"
	ActionReassignJoinRequest Action = "join_request:reassign"
	ActionCancelJoinRequest   Action = "join_request:cancel"
	ActionDeleteJoinRequest   Action = "join_request:delete"
	ActionEnrollIntoHalaqa    Action = "halaqa:enroll_into"
	ActionSelfEnroll          Action = "enrollment:self_enroll"
	ActionUnenroll            Action = "enrollment:unenroll"
	ActionViewRoster          Action = "halaqa:view_roster"
)

// Resource carries the records a decision depends on. Halaqa is the request's
// target halaqa for join-request actions and the affected halaqa otherwise.
type Resource struct {
	StudentID  string
	Request    *models.JoinRequest
	Halaqa     *models.Halaqa
	Enrollment *models.Enrollment
}

// Authorize is the single policy point for workflow capabilities. It returns
// a FORBIDDEN error when the actor may not perform the action.
func Authorize(actor models.Actor, action Action, res Resource) error {
	if actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	if allowed(actor, action, res) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, forbiddenMessage(action))
}

func allowed(actor models.Actor, action Action, res Resource) bool {
	admin := actor.Role == models.RoleAdmin
	switch action {
	case ActionSubmitJoinRequest, ActionSelfEnroll:
		return admin || (actor.Role == models.RoleStudent && res.StudentID == actor.UserID)
	case ActionViewJoinRequest:
		if admin || ownsRequest(actor, res.Request) {
			return true
		}
		return actor.Role == models.RoleTeacher && addressedTo(actor, res.Request, res.Halaqa)
	case ActionApproveJoinRequest, ActionRejectJoinRequest:
		if admin {
			return true
		}
		if actor.Role != models.RoleTeacher || res.Request == nil || res.Request.Type == models.JoinRequestTypeAnyTeacher {
			return false
		}
		return addressedTo(actor, res.Request, res.Halaqa)
	case ActionReassignJoinRequest:
		return actor.Role == models.RoleTeacher && addressedTo(actor, res.Request, res.Halaqa)
	case ActionCancelJoinRequest:
		return ownsRequest(actor, res.Request)
	case ActionDeleteJoinRequest:
		return admin
	case ActionEnrollIntoHalaqa, ActionViewRoster:
		return admin || (actor.Role == models.RoleTeacher && res.Halaqa != nil && res.Halaqa.TeacherID == actor.UserID)
	case ActionUnenroll:
		if admin {
			return true
		}
		if res.Enrollment != nil && actor.Role == models.RoleStudent && res.Enrollment.StudentID == actor.UserID {
			return true
		}
		return actor.Role == models.RoleTeacher && res.Halaqa != nil && res.Halaqa.TeacherID == actor.UserID
	}
	return false
}

func ownsRequest(actor models.Actor, request *models.JoinRequest) bool {
	return request != nil && actor.Role == models.RoleStudent && request.StudentID == actor.UserID
}

// addressedTo reports whether a teacher is a reviewer of the request: the
// owner of the target halaqa, the targeted teacher, or any teacher of the
// student's academy for ANY_TEACHER requests. ANY_TEACHER requests without an
// academy are left to admins.
func addressedTo(actor models.Actor, request *models.JoinRequest, target *models.Halaqa) bool {
	if request == nil {
		return false
	}
	switch request.Type {
	case models.JoinRequestTypeSpecificHalaqa:
		return target != nil && target.TeacherID == actor.UserID
	case models.JoinRequestTypeSpecificTeacher:
		return request.TargetTeacherID != nil && *request.TargetTeacherID == actor.UserID
	case models.JoinRequestTypeAnyTeacher:
		if request.AcademyID == nil || *request.AcademyID == "" {
			return false
		}
		return *request.AcademyID == actor.AcademyID
	}
	return false
}

func forbiddenMessage(action Action) string {
	switch action {
	case ActionCancelJoinRequest:
		return "only the requesting student can cancel a join request"
	case ActionReassignJoinRequest:
		return "only an addressed teacher can reassign a join request"
	case ActionApproveJoinRequest, ActionRejectJoinRequest:
		return "not a reviewer of this join request"
	case ActionEnrollIntoHalaqa:
		return "teachers can only enroll students into their own halaqas"
	case ActionDeleteJoinRequest:
		return "only admins can delete join requests"
	default:
		return "forbidden"
	}
}
