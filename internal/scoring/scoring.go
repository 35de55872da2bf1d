// Package scoring compares one field of an AI analysis against curated
// ground truth. Every scorer returns an integer in [0, 100] and is total:
// empty or malformed input degrades to a low score instead of failing.
package scoring

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// EraNoYearScore is the partial credit for an era string with no year in it.
const EraNoYearScore = 20

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsFold(haystack, needle string) bool {
	n := norm(needle)
	if n == "" {
		return false
	}
	return strings.Contains(norm(haystack), n)
}

// NameMatch gives full credit when the actual name contains the expected
// name, otherwise partial credit by keyword hits.
func NameMatch(expectedName string, keywords []string, actualName string) int {
	if containsFold(actualName, expectedName) {
		return 100
	}
	hits := 0
	for _, kw := range keywords {
		if containsFold(actualName, kw) {
			hits++
		}
	}
	switch {
	case hits == 0:
		return 0
	case hits == 1:
		return 40
	case hits == 2:
		return 70
	default:
		return min(90, 40+20*hits)
	}
}

func isUnknown(s string) bool {
	n := norm(s)
	return n == "" || n == "unknown" || strings.HasPrefix(n, "unknown ")
}

// MakerMatch scores the maker attribution. When no maker is known, naming
// one anyway earns half credit rather than a penalty.
func MakerMatch(expectedMaker string, alternatives []string, actualMaker string) int {
	if norm(expectedMaker) == "" {
		if isUnknown(actualMaker) {
			return 100
		}
		return 50
	}
	return matchWithAlternatives(expectedMaker, alternatives, actualMaker)
}

// StyleMatch scores the style attribution.
func StyleMatch(expectedStyle string, alternatives []string, actualStyle string) int {
	return matchWithAlternatives(expectedStyle, alternatives, actualStyle)
}

func matchWithAlternatives(expected string, alternatives []string, actual string) int {
	if norm(actual) == "" {
		return 0
	}
	if containsFold(actual, expected) {
		return 100
	}
	for _, alt := range alternatives {
		if containsFold(actual, alt) {
			return 90
		}
	}
	return 0
}

// ParseYears extracts every 4-digit run from an era string.
func ParseYears(era string) []int {
	matches := yearPattern.FindAllString(era, -1)
	years := make([]int, 0, len(matches))
	for _, m := range matches {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	return years
}

// EraMatch averages the years found in actualEra and scores the distance
// to the expected [start, end] range.
func EraMatch(expectedStart, expectedEnd int, actualEra string) int {
	years := ParseYears(actualEra)
	if len(years) == 0 {
		return EraNoYearScore
	}
	if expectedEnd < expectedStart {
		expectedStart, expectedEnd = expectedEnd, expectedStart
	}
	sum := 0
	for _, y := range years {
		sum += y
	}
	avg := float64(sum) / float64(len(years))

	var distance float64
	switch {
	case avg < float64(expectedStart):
		distance = float64(expectedStart) - avg
	case avg > float64(expectedEnd):
		distance = avg - float64(expectedEnd)
	default:
		return 100
	}
	switch {
	case distance <= 10:
		return 80
	case distance <= 25:
		return 50
	case distance <= 50:
		return 25
	default:
		return 0
	}
}

// ExactMatch is binary, case-insensitive equality.
func ExactMatch(expected, actual string) int {
	if norm(expected) != "" && norm(expected) == norm(actual) {
		return 100
	}
	return 0
}

// OriginMatch is binary, case-insensitive containment.
func OriginMatch(expected, actual string) int {
	if containsFold(actual, expected) {
		return 100
	}
	return 0
}

// ValueAccuracy compares two value ranges in cents. A range whose bounds are
// both zero or below counts as not provided.
func ValueAccuracy(expMin, expMax, actMin, actMax int64) int {
	if actMin <= 0 && actMax <= 0 {
		return 0
	}
	if expMin > expMax {
		expMin, expMax = expMax, expMin
	}
	if actMin > actMax {
		actMin, actMax = actMax, actMin
	}

	lo := max(expMin, actMin)
	hi := min(expMax, actMax)
	if hi >= lo {
		ratio := 1.0
		// Spans and midpoints are taken in float64 so extreme bounds
		// cannot overflow.
		if span := float64(expMax) - float64(expMin); span > 0 {
			ratio = (float64(hi) - float64(lo)) / span
		}
		return min(100, int(math.Round(60+40*ratio)))
	}

	expMid := float64(expMin)/2 + float64(expMax)/2
	actMid := float64(actMin)/2 + float64(actMax)/2
	if expMid <= 0 {
		return 0
	}
	off := math.Abs(actMid-expMid) / expMid
	switch {
	case off <= 0.25:
		return 60
	case off <= 0.50:
		return 40
	case off <= 1.00:
		return 20
	default:
		return 0
	}
}

// FeatureCoverage is the rounded percentage of expected features found in
// text, either as a substring or with all of their words present. An empty
// expectation is vacuously satisfied.
func FeatureCoverage(expected []string, text string) int {
	var wanted []string
	for _, f := range expected {
		if norm(f) != "" {
			wanted = append(wanted, f)
		}
	}
	if len(wanted) == 0 {
		return 100
	}
	haystack := norm(text)
	found := 0
	for _, f := range wanted {
		if featurePresent(norm(f), haystack) {
			found++
		}
	}
	return int(math.Round(100 * float64(found) / float64(len(wanted))))
}

func featurePresent(feature, haystack string) bool {
	if strings.Contains(haystack, feature) {
		return true
	}
	words := strings.Fields(feature)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(haystack, w) {
			return false
		}
	}
	return true
}

// Clamp forces a score into [0, 100].
func Clamp(score int) int {
	return max(0, min(100, score))
}
