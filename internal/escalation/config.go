package escalation

import (
	"errors"
	"fmt"

	"vintagevision/internal/domain"
)

const (
	TierQuickReview        = "quick_review"
	TierFullAuthentication = "full_authentication"
	TierPremiumAppraisal   = "premium_appraisal"
)

// Config holds escalation thresholds and the purchasable tiers. It is a
// value: callers pass it explicitly and never mutate a shared instance.
type Config struct {
	AutoEscalateValue     int64                      `yaml:"auto_escalate_value"`
	PremiumEscalateValue  int64                      `yaml:"premium_escalate_value"`
	LowConfidence         float64                    `yaml:"low_confidence"`
	AuthenticationConcern float64                    `yaml:"authentication_concern"`
	HighRiskCategories    []domain.Domain            `yaml:"high_risk_categories"`
	Tiers                 []domain.ExpertServiceTier `yaml:"tiers"`
}

// DefaultConfig returns the documented default configuration. Each call
// returns fresh slices.
func DefaultConfig() Config {
	return Config{
		AutoEscalateValue:     100_000,
		PremiumEscalateValue:  1_000_000,
		LowConfidence:         0.60,
		AuthenticationConcern: 0.70,
		HighRiskCategories: []domain.Domain{
			domain.DomainJewelry,
			domain.DomainWatches,
			domain.DomainArt,
			domain.DomainCoins,
		},
		Tiers: DefaultTiers(),
	}
}

func DefaultTiers() []domain.ExpertServiceTier {
	return []domain.ExpertServiceTier{
		{
			ID:              TierQuickReview,
			Name:            "Quick Expert Review",
			Price:           4_900,
			TurnaroundHours: 24,
			Includes: []string{
				"Review of the AI identification by a specialist",
				"Confirmation or correction of maker and era",
				"Written summary",
			},
			Recommendation: "A specialist double-checks the identification.",
		},
		{
			ID:              TierFullAuthentication,
			Name:            "Full Authentication",
			Price:           14_900,
			TurnaroundHours: 72,
			Includes: []string{
				"Everything in Quick Expert Review",
				"Authenticity assessment against known reproductions",
				"Detailed valuation with comparable sales",
				"Certificate of assessment",
			},
			Recommendation: "Recommended when authenticity or value needs independent confirmation.",
		},
		{
			ID:              TierPremiumAppraisal,
			Name:            "Premium Appraisal",
			Price:           39_900,
			TurnaroundHours: 120,
			Includes: []string{
				"Everything in Full Authentication",
				"Insurance-grade appraisal document",
				"Video consultation with the appraiser",
				"Provenance research",
			},
			Recommendation: "For high-value pieces where an insurance-grade appraisal is warranted.",
		},
	}
}

// Tier looks up a tier by id. The result is a copy the caller may modify.
func (c Config) Tier(id string) (domain.ExpertServiceTier, bool) {
	for _, t := range c.Tiers {
		if t.ID == id {
			return cloneTier(t), true
		}
	}
	return domain.ExpertServiceTier{}, false
}

// AllTiers returns a copy of every configured tier, Includes included.
func (c Config) AllTiers() []domain.ExpertServiceTier {
	tiers := make([]domain.ExpertServiceTier, len(c.Tiers))
	for i, t := range c.Tiers {
		tiers[i] = cloneTier(t)
	}
	return tiers
}

func cloneTier(t domain.ExpertServiceTier) domain.ExpertServiceTier {
	if t.Includes != nil {
		t.Includes = append([]string(nil), t.Includes...)
	}
	return t
}

func (c Config) isHighRisk(d domain.Domain) bool {
	for _, hr := range c.HighRiskCategories {
		if hr == d {
			return true
		}
	}
	return false
}

// Validate checks thresholds and that every tier id the evaluator can
// recommend exists in Tiers.
func (c Config) Validate() error {
	var errs []error
	if c.AutoEscalateValue < 0 {
		errs = append(errs, fmt.Errorf("auto escalate value must be >= 0, got %d", c.AutoEscalateValue))
	}
	if c.PremiumEscalateValue < c.AutoEscalateValue {
		errs = append(errs, fmt.Errorf("premium escalate value %d must be >= auto escalate value %d", c.PremiumEscalateValue, c.AutoEscalateValue))
	}
	if c.LowConfidence < 0 || c.LowConfidence > 1 {
		errs = append(errs, fmt.Errorf("low confidence threshold must be between 0 and 1, got %f", c.LowConfidence))
	}
	if c.AuthenticationConcern < 0 || c.AuthenticationConcern > 1 {
		errs = append(errs, fmt.Errorf("authentication concern threshold must be between 0 and 1, got %f", c.AuthenticationConcern))
	}
	for _, d := range c.HighRiskCategories {
		if !d.Valid() {
			errs = append(errs, fmt.Errorf("unknown high-risk category %q", d))
		}
	}
	seen := make(map[string]bool, len(c.Tiers))
	for _, t := range c.Tiers {
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate tier id %q", t.ID))
		}
		seen[t.ID] = true
		if t.TurnaroundHours <= 0 {
			errs = append(errs, fmt.Errorf("tier %q turnaround must be > 0", t.ID))
		}
	}
	for _, id := range []string{TierQuickReview, TierFullAuthentication, TierPremiumAppraisal} {
		if !seen[id] {
			errs = append(errs, fmt.Errorf("required tier %q missing", id))
		}
	}
	return errors.Join(errs...)
}
