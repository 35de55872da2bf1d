package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Domain is the specialist category an item is routed to.
type Domain string

const (
	DomainFurniture Domain = "furniture"
	DomainCeramics  Domain = "ceramics"
	DomainGlassware Domain = "glassware"
	DomainSilver    Domain = "silver"
	DomainJewelry   Domain = "jewelry"
	DomainWatches   Domain = "watches"
	DomainClocks    Domain = "clocks"
	DomainArt       Domain = "art"
	DomainPrints    Domain = "prints"
	DomainTextiles  Domain = "textiles"
	DomainToys      Domain = "toys"
	DomainBooks     Domain = "books"
	DomainMilitaria Domain = "militaria"
	DomainCoins     Domain = "coins"
	DomainLighting  Domain = "lighting"
	DomainGeneral   Domain = "general"
)

// AllDomains lists every domain in display order. New domains must be added here.
var AllDomains = []Domain{
	DomainFurniture,
	DomainCeramics,
	DomainGlassware,
	DomainSilver,
	DomainJewelry,
	DomainWatches,
	DomainClocks,
	DomainArt,
	DomainPrints,
	DomainTextiles,
	DomainToys,
	DomainBooks,
	DomainMilitaria,
	DomainCoins,
	DomainLighting,
	DomainGeneral,
}

func (d Domain) Valid() bool {
	for _, known := range AllDomains {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDomain maps free text from a model or fixture onto the closed set.
// Unknown values fall back to DomainGeneral.
func ParseDomain(s string) Domain {
	if d, ok := LookupDomain(s); ok {
		return d
	}
	return DomainGeneral
}

// LookupDomain is the strict form of ParseDomain: known spellings and
// aliases resolve, anything else reports false.
func LookupDomain(s string) (Domain, bool) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if d.Valid() {
		return d, true
	}
	switch d {
	case "glass":
		return DomainGlassware, true
	case "pottery", "porcelain":
		return DomainCeramics, true
	case "watch", "timepieces":
		return DomainWatches, true
	case "clock":
		return DomainClocks, true
	case "painting", "paintings", "fine art", "sculpture":
		return DomainArt, true
	case "silverware":
		return DomainSilver, true
	case "textile", "rugs", "quilts":
		return DomainTextiles, true
	case "coin", "numismatics":
		return DomainCoins, true
	case "book", "ephemera":
		return DomainBooks, true
	case "lamps", "lamp":
		return DomainLighting, true
	}
	return "", false
}

// UnmarshalJSON accepts the same spellings as LookupDomain and rejects
// unknown categories. An empty string stays empty.
func (d *Domain) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = ""
		return nil
	}
	parsed, ok := LookupDomain(s)
	if !ok {
		return fmt.Errorf("unknown domain %q", s)
	}
	*d = parsed
	return nil
}

type AuthenticityRisk string

const (
	RiskNone     AuthenticityRisk = "none"
	RiskLow      AuthenticityRisk = "low"
	RiskMedium   AuthenticityRisk = "medium"
	RiskHigh     AuthenticityRisk = "high"
	RiskVeryHigh AuthenticityRisk = "very_high"
)

func ParseAuthenticityRisk(s string) AuthenticityRisk {
	if r, ok := LookupAuthenticityRisk(s); ok {
		return r
	}
	return RiskNone
}

// LookupAuthenticityRisk accepts any case with spaces or hyphens in place
// of underscores ("Very High", "VERY-HIGH").
func LookupAuthenticityRisk(s string) (AuthenticityRisk, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch r := AuthenticityRisk(normalized); r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh, RiskVeryHigh:
		return r, true
	}
	return "", false
}

func (r *AuthenticityRisk) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*r = ""
		return nil
	}
	parsed, ok := LookupAuthenticityRisk(s)
	if !ok {
		return fmt.Errorf("unknown authenticity risk %q", s)
	}
	*r = parsed
	return nil
}

// AnalysisResult is one snapshot produced by the vision pipeline.
// Values are in minor currency units (cents).
type AnalysisResult struct {
	ID                        string           `json:"id" yaml:"id"`
	Name                      string           `json:"name" yaml:"name"`
	Maker                     string           `json:"maker" yaml:"maker"`
	Era                       string           `json:"era" yaml:"era"`
	Style                     string           `json:"style" yaml:"style"`
	Origin                    string           `json:"origin" yaml:"origin"`
	Category                  string           `json:"category" yaml:"category"`
	Description               string           `json:"description" yaml:"description"`
	Evidence                  []string         `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	DomainExpert              Domain           `json:"domainExpert" yaml:"domain_expert"`
	EstimatedValueMin         int64            `json:"estimatedValueMin" yaml:"estimated_value_min"`
	EstimatedValueMax         int64            `json:"estimatedValueMax" yaml:"estimated_value_max"`
	Confidence                float64          `json:"confidence" yaml:"confidence"`
	AuthenticityRisk          AuthenticityRisk `json:"authenticityRisk" yaml:"authenticity_risk"`
	ExpertReferralRecommended bool             `json:"expertReferralRecommended" yaml:"expert_referral_recommended"`
	ExpertReferralReason      string           `json:"expertReferralReason,omitempty" yaml:"expert_referral_reason,omitempty"`
}

// MidValue is the average of the estimated range, truncated toward zero.
// It does not overflow for values near the int64 limits.
func (a AnalysisResult) MidValue() int64 {
	lo, hi := a.EstimatedValueMin, a.EstimatedValueMax
	return lo/2 + hi/2 + (lo%2+hi%2)/2
}
