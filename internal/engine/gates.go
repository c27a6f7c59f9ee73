package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go-onboard/internal/domain"
)

// GateFunc inspects a step payload before the engine accepts the step as
// completed. A non-nil error rejects the completion.
type GateFunc func(ctx context.Context, payload []byte) error

// Gates maps steps to the check that must pass to complete them.
type Gates map[domain.StepID]GateFunc

// DefaultGates wires up the structural checks of the tenant onboarding.
// Field syntax (email, phone format) is validated by the presenter.
func DefaultGates() Gates {
	gates := make(Gates)

	gates[domain.StepPricingSelection] = func(_ context.Context, payload []byte) error {
		var in struct {
			Plan string `json:"plan"`
		}
		if err := json.Unmarshal(payload, &in); err != nil {
			return err
		}
		if in.Plan == "" {
			return fmt.Errorf("a plan must be selected")
		}
		return nil
	}

	gates[domain.StepSMSValidation] = func(_ context.Context, payload []byte) error {
		var in struct {
			Verified bool `json:"verified"`
		}
		if err := json.Unmarshal(payload, &in); err != nil {
			return err
		}
		if !in.Verified {
			return fmt.Errorf("phone number has not been verified")
		}
		return nil
	}

	gates[domain.StepOrgCreation] = requireField("name")
	gates[domain.StepAdminCreation] = requireField("email")
	gates[domain.StepGarageSetup] = requireField("name")

	return gates
}

func requireField(field string) GateFunc {
	return func(_ context.Context, payload []byte) error {
		var in map[string]any
		if err := json.Unmarshal(payload, &in); err != nil {
			return err
		}
		if v, ok := in[field]; !ok || v == nil || v == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func (g Gates) check(ctx context.Context, step domain.StepID, payload []byte) error {
	gate, ok := g[step]
	if !ok {
		return nil
	}
	if err := gate(ctx, payload); err != nil {
		return &domain.Error{
			Code:    domain.CodeInvalidPayload,
			Step:    step,
			Message: fmt.Sprintf("step %q rejected: %v", step, err),
		}
	}
	return nil
}
