package evaluation

import (
	"math"
	"sort"
	"strings"

	"vintagevision/internal/domain"
	"vintagevision/internal/scoring"
)

type Field string

const (
	FieldName           Field = "name"
	FieldMaker          Field = "maker"
	FieldEra            Field = "era"
	FieldStyle          Field = "style"
	FieldCategory       Field = "category"
	FieldDomain         Field = "domain"
	FieldOrigin         Field = "origin"
	FieldValue          Field = "value"
	FieldFeatures       Field = "features"
	FieldAuthentication Field = "authentication"
)

// Weights sum to 100.
var Weights = []struct {
	Field  Field
	Weight int
}{
	{FieldName, 15},
	{FieldMaker, 15},
	{FieldEra, 10},
	{FieldStyle, 10},
	{FieldCategory, 5},
	{FieldDomain, 5},
	{FieldOrigin, 5},
	{FieldValue, 20},
	{FieldFeatures, 10},
	{FieldAuthentication, 5},
}

// AccuracyGate is the mean score a run must reach for OverallAccuracy to be
// reported as non-zero.
const AccuracyGate = 70.0

// TestResult pairs one ground-truth item with one AI output.
type TestResult struct {
	Item    GroundTruthItem
	Actual  domain.AnalysisResult
	Scores  map[Field]int
	Overall int

	Successes        []Field
	PartialMatches   []Field
	NeedsImprovement []Field
	CompleteMisses   []Field
}

// ScoreFields runs every field scorer.
func ScoreFields(item GroundTruthItem, actual domain.AnalysisResult) map[Field]int {
	text := strings.Join(append([]string{actual.Description, actual.Name}, actual.Evidence...), " ")
	return map[Field]int{
		FieldName:           scoring.NameMatch(item.Name, item.NameKeywords, actual.Name),
		FieldMaker:          scoring.MakerMatch(item.Maker, item.AlternativeMakers, actual.Maker),
		FieldEra:            scoring.EraMatch(item.EraStart, item.EraEnd, actual.Era),
		FieldStyle:          scoring.StyleMatch(item.Style, item.AlternativeStyles, actual.Style),
		FieldCategory:       scoring.ExactMatch(item.Category, actual.Category),
		FieldDomain:         scoring.ExactMatch(string(item.DomainExpert), string(actual.DomainExpert)),
		FieldOrigin:         scoring.OriginMatch(item.Origin, actual.Origin),
		FieldValue:          scoring.ValueAccuracy(item.ValueMin, item.ValueMax, actual.EstimatedValueMin, actual.EstimatedValueMax),
		FieldFeatures:       scoring.FeatureCoverage(item.MustIdentify, text),
		FieldAuthentication: scoring.FeatureCoverage(item.AuthenticationMarkers, text),
	}
}

// WeightedScore rounds the weighted average of the field scores.
func WeightedScore(scores map[Field]int) int {
	total := 0
	for _, w := range Weights {
		total += scoring.Clamp(scores[w.Field]) * w.Weight
	}
	return int(math.Round(float64(total) / 100))
}

// Evaluate scores one item.
func Evaluate(item GroundTruthItem, actual domain.AnalysisResult) TestResult {
	scores := ScoreFields(item, actual)
	r := TestResult{
		Item:    item,
		Actual:  actual,
		Scores:  scores,
		Overall: WeightedScore(scores),
	}
	for _, w := range Weights {
		s := scores[w.Field]
		switch {
		case s == 100:
			r.Successes = append(r.Successes, w.Field)
		case s >= 70:
			r.PartialMatches = append(r.PartialMatches, w.Field)
		case s > 0:
			r.NeedsImprovement = append(r.NeedsImprovement, w.Field)
		default:
			r.CompleteMisses = append(r.CompleteMisses, w.Field)
		}
	}
	return r
}

type Distribution struct {
	Excellent  int // >= 90
	Good       int // [75, 90)
	Acceptable int // [60, 75)
	Poor       int // [40, 60)
	Failed     int // < 40
}

func (d *Distribution) add(score int) {
	switch {
	case score >= 90:
		d.Excellent++
	case score >= 75:
		d.Good++
	case score >= 60:
		d.Acceptable++
	case score >= 40:
		d.Poor++
	default:
		d.Failed++
	}
}

type CategoryStats struct {
	Count        int
	AverageScore float64
}

// Report aggregates many results. OverallAccuracy is gated: it equals
// AverageScore only when AverageScore >= AccuracyGate, otherwise 0.
type Report struct {
	TotalItems        int
	AverageScore      float64
	// MedianScore is the sorted score at index floor(n/2). Even-length runs
	// take the upper middle value, so [10 20 30 40] gives 30, not 25.
	MedianScore       int
	OverallAccuracy   float64
	CategoryBreakdown map[domain.Domain]CategoryStats
	Distribution      Distribution
	Results           []TestResult
}

func (r Report) Passed() bool {
	return r.OverallAccuracy > 0
}

// BuildReport aggregates results in the given order.
func BuildReport(results []TestResult) Report {
	rep := Report{
		TotalItems:        len(results),
		CategoryBreakdown: make(map[domain.Domain]CategoryStats),
		Results:           results,
	}
	if len(results) == 0 {
		return rep
	}

	scores := make([]int, len(results))
	sums := make(map[domain.Domain]int)
	total := 0
	for i, r := range results {
		scores[i] = r.Overall
		total += r.Overall
		rep.Distribution.add(r.Overall)

		cat := r.Item.DomainExpert
		stats := rep.CategoryBreakdown[cat]
		stats.Count++
		rep.CategoryBreakdown[cat] = stats
		sums[cat] += r.Overall
	}
	for cat, stats := range rep.CategoryBreakdown {
		stats.AverageScore = float64(sums[cat]) / float64(stats.Count)
		rep.CategoryBreakdown[cat] = stats
	}

	rep.AverageScore = float64(total) / float64(len(results))
	rep.MedianScore = Median(scores)
	if rep.AverageScore >= AccuracyGate {
		rep.OverallAccuracy = rep.AverageScore
	}
	return rep
}

// Median returns sorted[len/2]. For even lengths that is the upper of the two
// middle elements; the pair is never averaged.
func Median(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	sorted := make([]int, len(scores))
	copy(sorted, scores)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}
