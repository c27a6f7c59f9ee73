package domain

import "fmt"

// StepID identifies one stage of the onboarding sequence.
type StepID string

const (
	StepInit             StepID = "init"
	StepSuperAdminCheck  StepID = "super_admin_check"
	StepPricingSelection StepID = "pricing_selection"
	StepAdminCreation    StepID = "admin_creation"
	StepOrgCreation      StepID = "org_creation"
	StepSMSValidation    StepID = "sms_validation"
	StepGarageSetup      StepID = "garage_setup"
	StepDashboard        StepID = "dashboard"
	StepCompleted        StepID = "completed"
)

// knownSteps is the closed set of step identifiers.
var knownSteps = map[StepID]struct{}{
	StepInit:             {},
	StepSuperAdminCheck:  {},
	StepPricingSelection: {},
	StepAdminCreation:    {},
	StepOrgCreation:      {},
	StepSMSValidation:    {},
	StepGarageSetup:      {},
	StepDashboard:        {},
	StepCompleted:        {},
}

func (s StepID) String() string { return string(s) }

// Valid reports whether s belongs to the closed set of step identifiers.
func (s StepID) Valid() bool {
	_, ok := knownSteps[s]
	return ok
}

// IsTerminal reports whether s is the frozen terminal step.
func (s StepID) IsTerminal() bool { return s == StepCompleted }

// ParseStepID converts free-form input into a StepID, rejecting anything
// outside the closed set.
func ParseStepID(raw string) (StepID, error) {
	id := StepID(raw)
	if !id.Valid() {
		return "", NewError(CodeUnknownStep, id, fmt.Sprintf("unknown step %q", raw))
	}
	return id, nil
}

// Role is the actor role supplied by the identity provider.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleMember     Role = "member"
)

func (r Role) String() string { return string(r) }

// StepDefinition is the static metadata of a step.
type StepDefinition struct {
	ID           StepID
	Required     bool
	Reversible   bool
	AllowedRoles []Role
}

// Allows reports whether role may navigate back to this step.
func (d StepDefinition) Allows(role Role) bool {
	for _, r := range d.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}
