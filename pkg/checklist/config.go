package checklist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Definition struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type ConditionalDefinition struct {
	Name      string   `yaml:"name" json:"name"`
	Key       string   `yaml:"key" json:"key"`
	Aliases   []string `yaml:"aliases" json:"aliases,omitempty"`
	Condition string   `yaml:"condition" json:"condition,omitempty"`
}

type Definitions struct {
	Fixed       []Definition            `yaml:"fixed" json:"fixed"`
	Conditional []ConditionalDefinition `yaml:"conditional" json:"conditional"`
}

// LoadDefinitions reads a YAML definition file. An empty path yields the
// built-in defaults.
func LoadDefinitions(path string) (Definitions, error) {
	if path == "" {
		return DefaultDefinitions(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultDefinitions(), fmt.Errorf("reading checklist definitions: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, fmt.Errorf("parsing checklist definitions: %w", err)
	}
	if len(defs.Fixed) == 0 && len(defs.Conditional) == 0 {
		return Definitions{}, errors.New("no checklist items configured")
	}
	for i, d := range defs.Fixed {
		if d.Name == "" || len(d.Keywords) == 0 {
			return Definitions{}, fmt.Errorf("fixed item %d needs a name and keywords", i)
		}
	}
	for i, d := range defs.Conditional {
		if d.Name == "" || d.Key == "" {
			return Definitions{}, fmt.Errorf("conditional item %d needs a name and key", i)
		}
	}
	return defs, nil
}

func DefaultDefinitions() Definitions {
	return Definitions{
		Fixed: []Definition{
			{Name: "Authorization", Keywords: []string{"authorization", "authorisation", "consent"}},
			{Name: "DRAI", Keywords: []string{"drai", "risk assessment", "donor risk assessment interview"}},
			{Name: "Physical Assessment", Keywords: []string{"physical assessment", "physical exam"}},
			{Name: "Serology", Keywords: []string{"serology", "infectious disease", "idt"}},
			{Name: "Medical Records", Keywords: []string{"medical record", "hospital record", "medical history"}},
			{Name: "Tissue Recovery", Keywords: []string{"tissue recovery", "recovery record"}},
			{Name: "Plasma Dilution", Keywords: []string{"plasma dilution", "hemodilution"}},
		},
		Conditional: []ConditionalDefinition{
			{Name: "Autopsy Report", Key: "autopsy_report", Condition: "Required when an autopsy was performed"},
			{Name: "Toxicology Report", Key: "toxicology_report", Condition: "Required when toxicology was ordered"},
			{Name: "Skin Dermal Cultures", Key: "skin_dermal_cultures", Aliases: []string{"skinDermalCultures"}, Condition: "Required when skin is recovered"},
			{Name: "Bioburden Results", Key: "bioburden_results", Condition: "Required when bioburden testing was performed"},
		},
	}
}
