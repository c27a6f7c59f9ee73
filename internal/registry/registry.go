// Package registry holds the static, ordered catalog of onboarding steps.
// A Registry is immutable after construction and safe for concurrent reads.
package registry

import (
	"fmt"
	"slices"

	"go-onboard/internal/domain"
)

// Registry is the canonical ordered list of step definitions.
type Registry struct {
	defs  []domain.StepDefinition
	index map[domain.StepID]int
}

// New validates defs and builds a Registry. The order of defs is the
// canonical forward sequence and must end with the terminal step.
func New(defs ...domain.StepDefinition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("registry: no steps defined")
	}

	r := &Registry{
		defs:  make([]domain.StepDefinition, len(defs)),
		index: make(map[domain.StepID]int, len(defs)),
	}
	for i, d := range defs {
		if !d.ID.Valid() {
			return nil, domain.NewError(domain.CodeUnknownStep, d.ID, fmt.Sprintf("registry: unknown step %q", d.ID))
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate step %q", d.ID)
		}
		d.AllowedRoles = slices.Clone(d.AllowedRoles)
		r.defs[i] = d
		r.index[d.ID] = i
	}

	last := r.defs[len(r.defs)-1]
	if !last.ID.IsTerminal() {
		return nil, fmt.Errorf("registry: last step must be %q, got %q", domain.StepCompleted, last.ID)
	}
	return r, nil
}

// MustNew is New for static catalogs; it panics on an invalid catalog.
func MustNew(defs ...domain.StepDefinition) *Registry {
	r, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the tenant onboarding catalog.
func Default() *Registry {
	admins := []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin}
	return MustNew(
		domain.StepDefinition{ID: domain.StepInit, Required: true},
		domain.StepDefinition{ID: domain.StepSuperAdminCheck, Required: true},
		domain.StepDefinition{ID: domain.StepPricingSelection, Required: true, Reversible: true, AllowedRoles: admins},
		domain.StepDefinition{ID: domain.StepAdminCreation, Required: true, Reversible: true, AllowedRoles: []domain.Role{domain.RoleSuperAdmin}},
		domain.StepDefinition{ID: domain.StepOrgCreation, Required: true, Reversible: true, AllowedRoles: admins},
		domain.StepDefinition{ID: domain.StepSMSValidation, Required: true},
		domain.StepDefinition{ID: domain.StepGarageSetup, Required: true, Reversible: true, AllowedRoles: admins},
		domain.StepDefinition{ID: domain.StepDashboard, Reversible: true, AllowedRoles: []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleMember}},
		domain.StepDefinition{ID: domain.StepCompleted},
	)
}

// First returns the initial step.
func (r *Registry) First() domain.StepID { return r.defs[0].ID }

// Len returns the number of steps.
func (r *Registry) Len() int { return len(r.defs) }

// Steps returns the canonical sequence.
func (r *Registry) Steps() []domain.StepID {
	out := make([]domain.StepID, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.ID
	}
	return out
}

// Has reports whether id is part of this registry.
func (r *Registry) Has(id domain.StepID) bool {
	_, ok := r.index[id]
	return ok
}

// Lookup returns the definition of id.
func (r *Registry) Lookup(id domain.StepID) (domain.StepDefinition, error) {
	i, ok := r.index[id]
	if !ok {
		return domain.StepDefinition{}, unknown(id)
	}
	d := r.defs[i]
	d.AllowedRoles = slices.Clone(d.AllowedRoles)
	return d, nil
}

// IndexOf returns the canonical position of id.
func (r *Registry) IndexOf(id domain.StepID) (int, error) {
	i, ok := r.index[id]
	if !ok {
		return -1, unknown(id)
	}
	return i, nil
}

// StepsFrom returns the canonical sub-sequence starting at start. An
// unknown start is an error rather than a silent widening to the whole
// catalog, so a resumed session never replays completed steps.
func (r *Registry) StepsFrom(start domain.StepID) ([]domain.StepID, error) {
	i, err := r.IndexOf(start)
	if err != nil {
		return nil, err
	}
	return r.Steps()[i:], nil
}

// Between returns the definitions strictly between from and to in
// canonical order. from must precede to.
func (r *Registry) Between(from, to domain.StepID) []domain.StepDefinition {
	i, ok := r.index[from]
	j, ok2 := r.index[to]
	if !ok || !ok2 || j-i < 2 {
		return nil
	}
	out := make([]domain.StepDefinition, 0, j-i-1)
	out = append(out, r.defs[i+1:j]...)
	return out
}

func unknown(id domain.StepID) error {
	return domain.NewError(domain.CodeUnknownStep, id, fmt.Sprintf("step %q is not registered", id))
}
