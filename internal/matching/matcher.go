// Package matching ranks experts for an expert request.
package matching

import (
	"fmt"
	"sort"

	"vintagevision/internal/domain"
)

const (
	specializationPoints = 40.0
	ratingMultiplier     = 8.0
	fastTurnaroundPoints = 5.0
	fastTurnaroundFactor = 0.75

	// Used when the request's tier is not in the matcher's tier list.
	fallbackTurnaroundHours = 48
)

type experienceBand struct {
	minReviews int
	points     float64
}

// Ordered from the highest threshold down; only the first band reached applies.
var experienceBands = []experienceBand{
	{minReviews: 100, points: 15},
	{minReviews: 50, points: 10},
}

func experiencePoints(completed int) float64 {
	for _, b := range experienceBands {
		if completed >= b.minReviews {
			return b.points
		}
	}
	return 0
}

// Matcher scores experts against a request. Tiers supplies nominal
// turnaround per tier id.
type Matcher struct {
	Tiers []domain.ExpertServiceTier
}

func (m Matcher) tierHours(tierID string) float64 {
	for _, t := range m.Tiers {
		if t.ID == tierID {
			return float64(t.TurnaroundHours)
		}
	}
	return fallbackTurnaroundHours
}

// Score computes one expert's additive match score for req.
func (m Matcher) Score(req domain.ExpertRequest, e domain.Expert) domain.ExpertMatch {
	match := domain.ExpertMatch{
		Expert:              e,
		Reasons:             []string{},
		EstimatedTurnaround: e.AverageTurnaround,
	}
	if e.Specializes(req.ItemCategory) {
		match.MatchScore += specializationPoints
		match.Reasons = append(match.Reasons, fmt.Sprintf("Specializes in %s", req.ItemCategory))
	}
	match.MatchScore += e.Rating * ratingMultiplier
	if e.Rating > 0 {
		match.Reasons = append(match.Reasons, fmt.Sprintf("Rated %.1f", e.Rating))
	}
	if pts := experiencePoints(e.CompletedReviews); pts > 0 {
		match.MatchScore += pts
		match.Reasons = append(match.Reasons, fmt.Sprintf("%d completed reviews", e.CompletedReviews))
	}
	if e.AverageTurnaround <= fastTurnaroundFactor*m.tierHours(req.TierID) {
		match.MatchScore += fastTurnaroundPoints
		match.Reasons = append(match.Reasons, fmt.Sprintf("Fast turnaround (%.0fh average)", e.AverageTurnaround))
	}
	return match
}

// Rank returns a match for every active expert, best first. Equal scores
// keep their pool order.
func (m Matcher) Rank(req domain.ExpertRequest, pool []domain.Expert) []domain.ExpertMatch {
	matches := make([]domain.ExpertMatch, 0, len(pool))
	for _, e := range pool {
		if !e.IsActive {
			continue
		}
		matches = append(matches, m.Score(req, e))
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches
}

// FindBestExpert returns the top-ranked active expert. ok is false when no
// active expert exists; callers fall back to manual assignment.
func (m Matcher) FindBestExpert(req domain.ExpertRequest, pool []domain.Expert) (domain.ExpertMatch, bool) {
	ranked := m.Rank(req, pool)
	if len(ranked) == 0 {
		return domain.ExpertMatch{}, false
	}
	return ranked[0], true
}
