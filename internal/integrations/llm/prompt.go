package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"vintagevision/internal/domain"
)

func buildSystemPrompt(examples []CorrectionExample, maxLen int) string {
	var sb strings.Builder
	sb.WriteString(`You are an expert appraiser of antiques, vintage items and collectibles.
Identify the item in the photo and reply with a single JSON object, no prose, using these keys:

{
  "name": "short identification, e.g. Georgian oak Windsor armchair",
  "maker": "maker or manufacturer, or \"unknown\"",
  "era": "period with years, e.g. circa 1790-1820",
  "style": "design style or movement",
  "origin": "country or region of manufacture",
  "category": "specific object type, e.g. armchair, vase, wristwatch",
  "domain_expert": "one of the categories listed below",
  "description": "two to four sentences describing the item",
  "evidence": ["visible features supporting the identification"],
  "estimated_value_min": 0,
  "estimated_value_max": 0,
  "confidence": 0.0,
  "authenticity_risk": "none | low | medium | high | very_high",
  "expert_referral_recommended": false,
  "expert_referral_reason": ""
}

Rules:
- estimated_value_min and estimated_value_max are whole US dollars at auction.
- confidence is between 0 and 1 and reflects how sure you are of the identification.
- authenticity_risk is high or very_high when reproductions, fakes or marriages are common for this kind of item or the photo shows warning signs.
- Set expert_referral_recommended when a specialist should examine the item in person.
`)
	sb.WriteString("\ndomain_expert categories: ")
	names := make([]string, len(domain.AllDomains))
	for i, d := range domain.AllDomains {
		names[i] = string(d)
	}
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString("\n")

	if len(examples) > 0 {
		sb.WriteString("\nHuman experts corrected these earlier identifications. Avoid repeating the mistakes:\n")
		for _, ex := range examples {
			line := fmt.Sprintf("- %s (%s): %s was %q, expert corrected to %q", ex.ItemName, ex.ItemCategory, ex.Field, ex.OriginalValue, ex.CorrectedValue)
			if ex.Explanation != "" {
				line += ". " + ex.Explanation
			}
			sb.WriteString(truncateRunes(line, maxLen))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func buildUserPrompt(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "Identify this item."
	}
	return "Identify this item. The owner describes it as: " + hint
}

type analysisResponse struct {
	Name                      string   `json:"name"`
	Maker                     string   `json:"maker"`
	Era                       string   `json:"era"`
	Style                     string   `json:"style"`
	Origin                    string   `json:"origin"`
	Category                  string   `json:"category"`
	DomainExpert              string   `json:"domain_expert"`
	Description               string   `json:"description"`
	Evidence                  []string `json:"evidence"`
	EstimatedValueMin         float64  `json:"estimated_value_min"`
	EstimatedValueMax         float64  `json:"estimated_value_max"`
	Confidence                float64  `json:"confidence"`
	AuthenticityRisk          string   `json:"authenticity_risk"`
	ExpertReferralRecommended bool     `json:"expert_referral_recommended"`
	ExpertReferralReason      string   `json:"expert_referral_reason"`
}

// ParseAnalysisResponse decodes a model reply, fenced or not, and
// normalizes it: dollars become cents, an inverted range is swapped,
// confidence is clamped to [0, 1] and unknown enum values fall back to
// their defaults.
func ParseAnalysisResponse(responseText string) (domain.AnalysisResult, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)
	if start, end := strings.Index(responseText, "{"), strings.LastIndex(responseText, "}"); start > 0 && end > start {
		responseText = responseText[start : end+1]
	}

	var r analysisResponse
	if err := json.Unmarshal([]byte(responseText), &r); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("parsing LLM analysis response: %w (response: %s)", err, responseText)
	}

	minCents := dollarsToCents(r.EstimatedValueMin)
	maxCents := dollarsToCents(r.EstimatedValueMax)
	if minCents > maxCents {
		minCents, maxCents = maxCents, minCents
	}

	confidence := r.Confidence
	if confidence > 1 && confidence <= 100 {
		confidence /= 100
	}
	confidence = math.Max(0, math.Min(1, confidence))

	var evidence []string
	for _, e := range r.Evidence {
		if e = strings.TrimSpace(e); e != "" {
			evidence = append(evidence, e)
		}
	}

	return domain.AnalysisResult{
		ID:                        uuid.NewString(),
		Name:                      strings.TrimSpace(r.Name),
		Maker:                     strings.TrimSpace(r.Maker),
		Era:                       strings.TrimSpace(r.Era),
		Style:                     strings.TrimSpace(r.Style),
		Origin:                    strings.TrimSpace(r.Origin),
		Category:                  strings.TrimSpace(r.Category),
		Description:               strings.TrimSpace(r.Description),
		Evidence:                  evidence,
		DomainExpert:              domain.ParseDomain(r.DomainExpert),
		EstimatedValueMin:         minCents,
		EstimatedValueMax:         maxCents,
		Confidence:                confidence,
		AuthenticityRisk:          domain.ParseAuthenticityRisk(r.AuthenticityRisk),
		ExpertReferralRecommended: r.ExpertReferralRecommended,
		ExpertReferralReason:      strings.TrimSpace(r.ExpertReferralReason),
	}, nil
}

func dollarsToCents(v float64) int64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v * 100))
}
