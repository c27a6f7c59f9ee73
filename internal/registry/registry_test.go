package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-onboard/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	r := Default()
	assert.Equal(t, domain.StepInit, r.First())
	assert.Equal(t, 9, r.Len())

	steps := r.Steps()
	assert.Equal(t, domain.StepCompleted, steps[len(steps)-1])

	seen := make(map[domain.StepID]bool)
	for _, s := range steps {
		assert.False(t, seen[s], "duplicate step %s", s)
		seen[s] = true
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		defs []domain.StepDefinition
		want string
	}{
		{name: "empty", defs: nil, want: "no steps"},
		{
			name: "duplicate",
			defs: []domain.StepDefinition{{ID: domain.StepInit}, {ID: domain.StepInit}, {ID: domain.StepCompleted}},
			want: "duplicate",
		},
		{
			name: "unknown id",
			defs: []domain.StepDefinition{{ID: "billing"}, {ID: domain.StepCompleted}},
			want: "unknown step",
		},
		{
			name: "terminal not last",
			defs: []domain.StepDefinition{{ID: domain.StepCompleted}, {ID: domain.StepInit}},
			want: "last step",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.defs...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	r := Default()
	def, err := r.Lookup(domain.StepAdminCreation)
	require.NoError(t, err)
	assert.True(t, def.Required)
	assert.True(t, def.Reversible)
	assert.True(t, def.Allows(domain.RoleSuperAdmin))
	assert.False(t, def.Allows(domain.RoleAdmin))

	// Returned roles are a copy.
	def.AllowedRoles[0] = domain.RoleMember
	again, _ := r.Lookup(domain.StepAdminCreation)
	assert.Equal(t, domain.RoleSuperAdmin, again.AllowedRoles[0])

	short := MustNew(domain.StepDefinition{ID: domain.StepInit}, domain.StepDefinition{ID: domain.StepCompleted})
	_, err = short.Lookup(domain.StepDashboard)
	assert.ErrorIs(t, err, domain.ErrUnknownStep)
}

func TestStepsFrom(t *testing.T) {
	t.Parallel()

	r := Default()

	steps, err := r.StepsFrom(domain.StepSMSValidation)
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{
		domain.StepSMSValidation, domain.StepGarageSetup, domain.StepDashboard, domain.StepCompleted,
	}, steps)

	all, err := r.StepsFrom(r.First())
	require.NoError(t, err)
	assert.Equal(t, r.Steps(), all)

	// Restartable: a fresh slice every call.
	steps[0] = domain.StepInit
	again, _ := r.StepsFrom(domain.StepSMSValidation)
	assert.Equal(t, domain.StepSMSValidation, again[0])

	short := MustNew(domain.StepDefinition{ID: domain.StepInit}, domain.StepDefinition{ID: domain.StepCompleted})
	_, err = short.StepsFrom(domain.StepGarageSetup)
	assert.ErrorIs(t, err, domain.ErrUnknownStep)
}

func TestBetween(t *testing.T) {
	t.Parallel()

	r := Default()
	between := r.Between(domain.StepInit, domain.StepAdminCreation)
	require.Len(t, between, 2)
	assert.Equal(t, domain.StepSuperAdminCheck, between[0].ID)
	assert.Equal(t, domain.StepPricingSelection, between[1].ID)

	assert.Empty(t, r.Between(domain.StepInit, domain.StepSuperAdminCheck))
	assert.Empty(t, r.Between(domain.StepAdminCreation, domain.StepInit))
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	r, err := LoadFile("testdata/short.yaml")
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{
		domain.StepInit, domain.StepPricingSelection, domain.StepAdminCreation, domain.StepCompleted,
	}, r.Steps())

	def, err := r.Lookup(domain.StepPricingSelection)
	require.NoError(t, err)
	assert.True(t, def.Reversible)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, def.AllowedRoles)

	def, err = r.Lookup(domain.StepInit)
	require.NoError(t, err)
	assert.False(t, def.Reversible)

	r, err = LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default().Steps(), r.Steps())
}

func TestLoadYAMLRejectsBadCatalog(t *testing.T) {
	t.Parallel()

	_, err := LoadYAML(strings.NewReader("steps:\n  - id: init\n  - id: billing\n  - id: completed\n"))
	assert.ErrorIs(t, err, domain.ErrUnknownStep)

	_, err = LoadYAML(strings.NewReader("steps:\n  - id: init\n    colour: red\n"))
	assert.Error(t, err)
}
