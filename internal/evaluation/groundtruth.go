package evaluation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vintagevision/internal/domain"
)

// GroundTruthItem is a hand-verified expected analysis.
type GroundTruthItem struct {
	ID        string `yaml:"id"`
	ImagePath string `yaml:"image_path,omitempty"`

	Name              string        `yaml:"name"`
	NameKeywords      []string      `yaml:"name_keywords"`
	Maker             string        `yaml:"maker"`
	AlternativeMakers []string      `yaml:"alternative_makers"`
	EraStart          int           `yaml:"era_start"`
	EraEnd            int           `yaml:"era_end"`
	Style             string        `yaml:"style"`
	AlternativeStyles []string      `yaml:"alternative_styles"`
	Category          string        `yaml:"category"`
	DomainExpert      domain.Domain `yaml:"domain_expert"`
	Origin            string        `yaml:"origin"`
	ValueMin          int64         `yaml:"value_min"`
	ValueMax          int64         `yaml:"value_max"`

	MustIdentify          []string `yaml:"must_identify"`
	AuthenticationMarkers []string `yaml:"authentication_markers"`
}

type groundTruthFile struct {
	Items []GroundTruthItem `yaml:"items"`
}

// LoadGroundTruth reads a YAML fixture file. Items that fail validation are
// reported together; a partially valid file is rejected.
func LoadGroundTruth(path string) ([]GroundTruthItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ground truth: %w", err)
	}
	return ParseGroundTruth(data)
}

func ParseGroundTruth(data []byte) ([]GroundTruthItem, error) {
	var f groundTruthFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ground truth yaml: %w", err)
	}
	var errs []error
	seen := make(map[string]bool, len(f.Items))
	for i := range f.Items {
		item := &f.Items[i]
		item.DomainExpert = domain.ParseDomain(string(item.DomainExpert))
		if err := item.validate(); err != nil {
			errs = append(errs, fmt.Errorf("item %d (%s): %w", i, item.ID, err))
			continue
		}
		if seen[item.ID] {
			errs = append(errs, fmt.Errorf("item %d: duplicate id %q", i, item.ID))
		}
		seen[item.ID] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return f.Items, nil
}

func (g GroundTruthItem) validate() error {
	var missing []string
	if strings.TrimSpace(g.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(g.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(g.Style) == "" {
		missing = append(missing, "style")
	}
	if g.EraStart == 0 || g.EraEnd == 0 {
		missing = append(missing, "era_start/era_end")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if g.EraEnd < g.EraStart {
		return fmt.Errorf("era_end %d before era_start %d", g.EraEnd, g.EraStart)
	}
	if g.ValueMax < g.ValueMin {
		return fmt.Errorf("value_max %d below value_min %d", g.ValueMax, g.ValueMin)
	}
	return nil
}
