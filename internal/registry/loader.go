package registry

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"go-onboard/internal/domain"
)

// catalogFile is the YAML layout of a step catalog.
type catalogFile struct {
	Steps []struct {
		ID         string   `yaml:"id"`
		Required   bool     `yaml:"required"`
		Reversible bool     `yaml:"reversible"`
		Roles      []string `yaml:"roles"`
	} `yaml:"steps"`
}

// LoadYAML decodes a catalog and validates it with New.
func LoadYAML(r io.Reader) (*Registry, error) {
	var cf catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("registry: decode catalog: %w", err)
	}

	defs := make([]domain.StepDefinition, 0, len(cf.Steps))
	for _, s := range cf.Steps {
		id, err := domain.ParseStepID(s.ID)
		if err != nil {
			return nil, err
		}
		roles := make([]domain.Role, 0, len(s.Roles))
		for _, role := range s.Roles {
			roles = append(roles, domain.Role(role))
		}
		defs = append(defs, domain.StepDefinition{
			ID:           id,
			Required:     s.Required,
			Reversible:   s.Reversible,
			AllowedRoles: roles,
		})
	}
	return New(defs...)
}

// LoadFile reads a catalog from path. An empty path yields Default().
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open catalog: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}
