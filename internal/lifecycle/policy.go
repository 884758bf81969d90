package lifecycle

import "github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"

// Operation names a lifecycle operation for authorization and metrics.
type Operation string

const (
	OpCreate   Operation = "create"
	OpList     Operation = "list"
	OpGet      Operation = "get"
	OpApprove  Operation = "approve"
	OpDeny     Operation = "deny"
	OpCheckIn  Operation = "checkin"
	OpCheckOut Operation = "checkout"
)

type policy struct {
	roles []model.Role
	// ownHousehold restricts residents to visitors hosted by their own household.
	ownHousehold bool
	// needsHousehold rejects residents without a household before anything else runs.
	needsHousehold bool
	verb           string
}

var policies = map[Operation]policy{
	OpCreate:   {roles: []model.Role{model.RoleResident}, needsHousehold: true, verb: "create visitors"},
	OpList:     {roles: []model.Role{model.RoleResident, model.RoleGuard, model.RoleAdmin}, needsHousehold: true, verb: "list visitors"},
	OpGet:      {roles: []model.Role{model.RoleResident, model.RoleGuard, model.RoleAdmin}, ownHousehold: true, verb: "view"},
	OpApprove:  {roles: []model.Role{model.RoleResident, model.RoleAdmin}, ownHousehold: true, verb: "approve"},
	OpDeny:     {roles: []model.Role{model.RoleResident, model.RoleAdmin}, ownHousehold: true, verb: "deny"},
	OpCheckIn:  {roles: []model.Role{model.RoleGuard, model.RoleAdmin}, verb: "check in"},
	OpCheckOut: {roles: []model.Role{model.RoleGuard, model.RoleAdmin}, verb: "check out"},
}

func (p policy) allows(role model.Role) bool {
	for _, r := range p.roles {
		if r == role {
			return true
		}
	}
	return false
}

// authorize evaluates the policy for op. v is nil for operations that do not target a
// single visitor; when set, failures name the visitor.
func authorize(op Operation, requester model.User, v *model.Visitor) error {
	p := policies[op]
	if !p.allows(requester.Role) {
		if v != nil {
			return permissionError("Permission denied: a %s cannot %s visitor %s (ID %d).", roleLabel(requester.Role), p.verb, v.Name, v.ID)
		}
		return permissionError("Permission denied: a %s cannot %s.", roleLabel(requester.Role), p.verb)
	}
	if requester.Role != model.RoleResident {
		return nil
	}
	if p.needsHousehold && requester.HouseholdID == nil {
		return validationError("Cannot %s: you are not associated with a household.", p.verb)
	}
	if p.ownHousehold && v != nil && !requester.InHousehold(v.HostHouseholdID) {
		return permissionError("Permission denied: visitor %s (ID %d) does not belong to your household.", v.Name, v.ID)
	}
	return nil
}

func roleLabel(r model.Role) string {
	switch r {
	case model.RoleResident:
		return "resident"
	case model.RoleGuard:
		return "guard"
	case model.RoleAdmin:
		return "admin"
	}
	return "user without a role"
}
