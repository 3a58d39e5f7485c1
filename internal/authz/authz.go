// Package authz holds the single capability check used by every component
// that acts on behalf of a human requester.
package authz

import "lectureattend/internal/model"

// Principal is an authenticated human requester.
type Principal struct {
	ID   string
	Role model.Role
}

// Action names a capability.
type Action string

const (
	StartSession   Action = "session:start"
	EndSession     Action = "session:end"
	EnrollTemplate Action = "template:enroll"
	AmendRecord    Action = "record:amend"
	ManageDevices  Action = "device:manage"
)

// Resource describes what the action targets. OwnerID is the lecturer owning
// the course involved; SubjectID is the subject the action is about.
type Resource struct {
	OwnerID   string
	SubjectID string
}

type rule func(p Principal, r Resource) bool

var policy = map[Action]rule{
	StartSession:   ownsCourse,
	EndSession:     ownsCourse,
	EnrollTemplate: isSelfStudent,
	AmendRecord:    isAdmin,
	ManageDevices:  isAdmin,
}

// Can reports whether p may perform a on r. Unknown actions are denied.
func Can(p Principal, a Action, r Resource) bool {
	if p.ID == "" {
		return false
	}
	check, ok := policy[a]
	if !ok {
		return false
	}
	return check(p, r)
}

func ownsCourse(p Principal, r Resource) bool {
	return p.Role == model.RoleLecturer && r.OwnerID != "" && p.ID == r.OwnerID
}

func isSelfStudent(p Principal, r Resource) bool {
	return p.Role == model.RoleStudent && p.ID == r.SubjectID
}

func isAdmin(p Principal, _ Resource) bool {
	return p.Role == model.RoleAdmin
}
