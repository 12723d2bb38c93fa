package user

import "github.com/trezcool/ustawi/core"

// Operation names used by the static role allow-list.
const (
	OpSurveyCreate       = "survey:create"
	OpSurveyAssign       = "survey:assign"
	OpSurveyResults      = "survey:results"
	OpSurveyExport       = "survey:export"
	OpAssignmentList     = "assignment:list"
	OpAssignmentUpdate   = "assignment:update"
	OpSubmissionList     = "submission:list"
	OpUserList           = "user:list"
	OpUserUpdateRole     = "user:update_role"
	OpUserSetSupervisor  = "user:set_supervisor"
	OpUserDelete         = "user:delete"
	OpParticipantList    = "participant:list"
	OpNotificationCreate = "notification:create"
)

var opRoles = map[string][]Role{
	OpSurveyCreate:       {RoleAdmin, RoleSocialWorker},
	OpSurveyAssign:       {RoleAdmin, RoleSocialWorker},
	OpSurveyResults:      {RoleAdmin, RoleSocialWorker},
	OpSurveyExport:       {RoleAdmin, RoleSocialWorker},
	OpAssignmentList:     {RoleAdmin, RoleSocialWorker},
	OpAssignmentUpdate:   {RoleAdmin, RoleSocialWorker},
	OpSubmissionList:     {RoleAdmin, RoleSocialWorker},
	OpUserList:           {RoleAdmin},
	OpUserUpdateRole:     {RoleAdmin},
	OpUserSetSupervisor:  {RoleAdmin},
	OpUserDelete:         {RoleAdmin},
	OpParticipantList:    {RoleAdmin, RoleSocialWorker},
	OpNotificationCreate: {RoleAdmin, RoleSocialWorker},
}

// Allowed reports whether role may perform op. Unknown operations are denied.
func Allowed(role Role, op string) bool {
	for _, r := range opRoles[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Require returns core.ErrPermissionDenied if the actor's role may not perform op.
func (a Actor) Require(op string) error {
	if !Allowed(a.Role, op) {
		return core.ErrPermissionDenied
	}
	return nil
}
