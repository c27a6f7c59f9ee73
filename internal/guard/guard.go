// Package guard decides whether an onboarding transition is legal.
//
// Evaluation is pure: it performs no I/O and returns the same Decision for
// the same inputs, which is what makes a session resumable and replayable.
package guard

import (
	"fmt"

	"go-onboard/internal/domain"
	"go-onboard/internal/registry"
)

// Direction classifies a requested navigation relative to the current step.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		return "none"
	}
}

// Decision is the outcome of a guard evaluation.
type Decision struct {
	Allowed   bool
	Reason    domain.ReasonCode
	Direction Direction
	Target    domain.StepID
	// Blocking lists the required steps that must be completed first.
	Blocking []domain.StepID
	Message  string
}

// Err converts a denial into a domain error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return domain.NewError(d.Reason, d.Target, d.Message)
}

func allow(target domain.StepID, dir Direction) Decision {
	return Decision{Allowed: true, Target: target, Direction: dir}
}

func deny(target domain.StepID, dir Direction, code domain.ReasonCode, msg string) Decision {
	return Decision{Target: target, Direction: dir, Reason: code, Message: msg}
}

// CanTransition evaluates whether rec may move to target on behalf of role.
//
// Rules in order: target must be registered; a frozen record admits
// nothing; staying put is allowed; forward jumps need every required step
// strictly in between completed; backward moves need a reversible target
// whose allowed roles include role.
func CanTransition(reg *registry.Registry, rec *domain.ProgressRecord, target domain.StepID, role domain.Role) Decision {
	to, err := reg.IndexOf(target)
	if err != nil {
		return deny(target, DirectionNone, domain.CodeUnknownStep, fmt.Sprintf("step %q is not registered", target))
	}
	if rec.IsFrozen() {
		return deny(target, DirectionNone, domain.CodeWorkflowFrozen, "onboarding is already completed")
	}

	from, err := reg.IndexOf(rec.CurrentStep)
	if err != nil {
		return deny(rec.CurrentStep, DirectionNone, domain.CodeUnknownStep, fmt.Sprintf("current step %q is not registered", rec.CurrentStep))
	}

	switch {
	case to == from:
		return allow(target, DirectionNone)

	case to > from:
		var blocking []domain.StepID
		for _, def := range reg.Between(rec.CurrentStep, target) {
			if def.Required && !rec.IsCompleted(def.ID) {
				blocking = append(blocking, def.ID)
			}
		}
		if len(blocking) > 0 {
			d := deny(target, DirectionForward, domain.CodeSkippedRequiredStep,
				fmt.Sprintf("required step %q must be completed before %q", blocking[0], target))
			d.Blocking = blocking
			return d
		}
		return allow(target, DirectionForward)

	default:
		def, _ := reg.Lookup(target)
		if !def.Reversible {
			return deny(target, DirectionBackward, domain.CodeNotReversible,
				fmt.Sprintf("step %q cannot be revisited", target))
		}
		if !def.Allows(role) {
			return deny(target, DirectionBackward, domain.CodeRoleNotPermitted,
				fmt.Sprintf("role %q may not revisit step %q", role, target))
		}
		return allow(target, DirectionBackward)
	}
}
