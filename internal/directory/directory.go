// Package directory loads the expert pool that requests are matched against.
// Both sources return inactive experts too; the matcher filters them.
package directory

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vintagevision/internal/domain"
)

// Source satisfies requests.ExpertSource.
type Source interface {
	Experts(ctx context.Context) ([]domain.Expert, error)
}

// File reads experts from a YAML document on every call, so edits take
// effect without a restart.
type File struct {
	Path string
}

type fileDoc struct {
	Experts []domain.Expert `yaml:"experts"`
}

func (f File) Experts(_ context.Context) ([]domain.Expert, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read expert directory %s: %w", f.Path, err)
	}
	experts, err := ParseExperts(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return experts, nil
}

// ParseExperts decodes and validates a YAML expert directory.
func ParseExperts(data []byte) ([]domain.Expert, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse expert directory: %w", err)
	}
	seen := make(map[string]bool, len(doc.Experts))
	for i := range doc.Experts {
		e := &doc.Experts[i]
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("expert %d: missing id", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("expert %s: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if e.Rating < 0 || e.Rating > 5 {
			return nil, fmt.Errorf("expert %s: rating %.2f outside 0..5", e.ID, e.Rating)
		}
		e.Specializations = normalizeSpecializations(e.ID, e.Specializations)
	}
	return doc.Experts, nil
}

func normalizeSpecializations(expertID string, in []domain.Domain) []domain.Domain {
	out := make([]domain.Domain, 0, len(in))
	for _, raw := range in {
		d := domain.ParseDomain(string(raw))
		if d == domain.DomainGeneral && !strings.EqualFold(strings.TrimSpace(string(raw)), string(domain.DomainGeneral)) {
			log.Printf("expert directory expert=%s unknown specialization=%q mapped to general", expertID, raw)
		}
		out = append(out, d)
	}
	return out
}

// Static is a fixed in-memory pool.
type Static []domain.Expert

func (s Static) Experts(context.Context) ([]domain.Expert, error) {
	return []domain.Expert(s), nil
}
