package escalation

import (
	"fmt"
	"strings"

	"vintagevision/internal/domain"
)

// Trigger identifies which rule contributed a reason.
type Trigger string

const (
	TriggerPremiumValue   Trigger = "premium_value"
	TriggerHighValue      Trigger = "high_value"
	TriggerLowConfidence  Trigger = "low_confidence"
	TriggerAuthenticity   Trigger = "authenticity_risk"
	TriggerReferral       Trigger = "expert_referral"
	TriggerHighRiskDomain Trigger = "high_risk_category"
	TriggerWideRange      Trigger = "wide_value_range"
)

const wideRangeRatio = 3.0

type ValueRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
	Mid int64 `json:"mid"`
}

// Evaluation is the stateless outcome of evaluating one analysis.
type Evaluation struct {
	ShouldOffer       bool                       `json:"shouldOffer"`
	Urgency           domain.Urgency             `json:"urgency"`
	Reasons           []string                   `json:"reasons"`
	Triggers          []Trigger                  `json:"triggers"`
	RecommendedTier   *domain.ExpertServiceTier  `json:"recommendedTier"`
	AllAvailableTiers []domain.ExpertServiceTier `json:"allAvailableTiers"`
	ValueRange        ValueRange                 `json:"valueRange"`
}

type evaluator struct {
	cfg      Config
	urgency  domain.Urgency
	tier     *domain.ExpertServiceTier
	reasons  []string
	triggers []Trigger
}

func (e *evaluator) add(trigger Trigger, reason string) {
	e.triggers = append(e.triggers, trigger)
	e.reasons = append(e.reasons, reason)
}

func (e *evaluator) raise(u domain.Urgency) {
	e.urgency = e.urgency.Max(u)
}

// setTier overwrites any earlier recommendation.
func (e *evaluator) setTier(id string) {
	if t, ok := e.cfg.Tier(id); ok {
		e.tier = &t
	}
}

// fillTier only recommends when nothing was recommended yet.
func (e *evaluator) fillTier(id string) {
	if e.tier == nil {
		e.setTier(id)
	}
}

// Evaluate decides whether to offer human review for one analysis.
// Triggers run in a fixed order; urgency only ever increases.
func Evaluate(a domain.AnalysisResult, cfg Config) Evaluation {
	e := &evaluator{cfg: cfg, urgency: domain.UrgencyLow}
	mid := a.MidValue()

	// 1-2: value bands
	if mid >= cfg.PremiumEscalateValue {
		e.raise(domain.UrgencyHigh)
		e.setTier(TierPremiumAppraisal)
		e.add(TriggerPremiumValue, fmt.Sprintf("Estimated value of %s qualifies for a premium appraisal", FormatCents(mid)))
	} else if mid >= cfg.AutoEscalateValue {
		e.raise(domain.UrgencyMedium)
		e.setTier(TierFullAuthentication)
		e.add(TriggerHighValue, fmt.Sprintf("Estimated value of %s is high enough to warrant professional authentication", FormatCents(mid)))
	}

	// 3: confidence
	if a.Confidence < cfg.LowConfidence {
		e.raise(domain.UrgencyMedium)
		e.fillTier(TierQuickReview)
		e.add(TriggerLowConfidence, fmt.Sprintf("AI confidence is %.0f%%, below the %.0f%% review threshold", a.Confidence*100, cfg.LowConfidence*100))
	}

	// 4: authenticity jumps straight to critical
	if a.AuthenticityRisk == domain.RiskHigh || a.AuthenticityRisk == domain.RiskVeryHigh {
		e.urgency = domain.UrgencyCritical
		e.setTier(TierFullAuthentication)
		e.add(TriggerAuthenticity, fmt.Sprintf("Authenticity risk is %s; reproductions of this kind of item are common", strings.ReplaceAll(string(a.AuthenticityRisk), "_", " ")))
	}

	// 5: the model itself asked for a human
	if a.ExpertReferralRecommended {
		e.raise(domain.UrgencyMedium)
		e.fillTier(TierQuickReview)
		reason := "The analysis recommends review by a human expert"
		if r := strings.TrimSpace(a.ExpertReferralReason); r != "" {
			reason += ": " + r
		}
		e.add(TriggerReferral, reason)
	}

	// 6: category
	if cfg.isHighRisk(a.DomainExpert) {
		e.raise(domain.UrgencyMedium)
		e.add(TriggerHighRiskDomain, fmt.Sprintf("%s is a high-risk category for forgeries and misattribution", displayDomain(a.DomainExpert)))
	}

	// 7: spread
	if spreadRatio(a.EstimatedValueMin, a.EstimatedValueMax) > wideRangeRatio {
		e.fillTier(TierQuickReview)
		e.add(TriggerWideRange, fmt.Sprintf("Wide value range (%s to %s) indicates uncertainty in the valuation", FormatCents(a.EstimatedValueMin), FormatCents(a.EstimatedValueMax)))
	}

	return Evaluation{
		ShouldOffer:       len(e.reasons) > 0 || mid >= cfg.AutoEscalateValue,
		Urgency:           e.urgency,
		Reasons:           nonNil(e.reasons),
		Triggers:          nonNilTriggers(e.triggers),
		RecommendedTier:   e.tier,
		AllAvailableTiers: cfg.AllTiers(),
		ValueRange: ValueRange{
			Min: a.EstimatedValueMin,
			Max: a.EstimatedValueMax,
			Mid: mid,
		},
	}
}

func spreadRatio(min, max int64) float64 {
	denom := min
	if denom < 1 {
		denom = 1
	}
	return float64(max) / float64(denom)
}

func displayDomain(d domain.Domain) string {
	s := string(d)
	if s == "" {
		return "This category"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatCents renders minor units as dollars, e.g. 123456 -> "$1,234.56".
// Whole-dollar amounts drop the cents.
func FormatCents(cents int64) string {
	sign := ""
	abs := uint64(cents)
	if cents < 0 {
		sign = "-"
		abs = uint64(-(cents + 1)) + 1
	}
	dollars := abs / 100
	rem := abs % 100

	digits := fmt.Sprintf("%d", dollars)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if rem == 0 {
		return sign + "$" + b.String()
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), rem)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilTriggers(s []Trigger) []Trigger {
	if s == nil {
		return []Trigger{}
	}
	return s
}
