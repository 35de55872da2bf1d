package matching

import (
	"testing"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
)

func newMatcher() Matcher {
	return Matcher{Tiers: escalation.DefaultTiers()}
}

func baseExpert(id string) domain.Expert {
	return domain.Expert{
		ID:                id,
		Name:              "Expert " + id,
		Specializations:   []domain.Domain{domain.DomainCeramics},
		Rating:            4.5,
		CompletedReviews:  60,
		AverageTurnaround: 30,
		IsActive:          true,
	}
}

func furnitureRequest(tier string) domain.ExpertRequest {
	return domain.ExpertRequest{ID: "req-1", TierID: tier, ItemCategory: domain.DomainFurniture}
}

func TestScoreComponents(t *testing.T) {
	m := newMatcher()
	e := domain.Expert{
		ID:                "a",
		Specializations:   []domain.Domain{domain.DomainFurniture},
		Rating:            5,
		CompletedReviews:  150,
		AverageTurnaround: 18,
		IsActive:          true,
	}
	// quick_review is 24h; 18 <= 0.75*24
	got := m.Score(furnitureRequest(escalation.TierQuickReview), e)
	if want := 40.0 + 40 + 15 + 5; got.MatchScore != want {
		t.Fatalf("MatchScore = %v, want %v", got.MatchScore, want)
	}
	if len(got.Reasons) != 4 {
		t.Fatalf("expected 4 reasons, got %v", got.Reasons)
	}
	if got.EstimatedTurnaround != 18 {
		t.Fatalf("EstimatedTurnaround = %v", got.EstimatedTurnaround)
	}
}

func TestExperienceBandsAreExclusive(t *testing.T) {
	tests := []struct {
		reviews int
		want    float64
	}{
		{0, 0},
		{49, 0},
		{50, 10},
		{99, 10},
		{100, 15},
		{5000, 15},
	}
	for _, tt := range tests {
		if got := experiencePoints(tt.reviews); got != tt.want {
			t.Fatalf("experiencePoints(%d) = %v, want %v", tt.reviews, got, tt.want)
		}
	}
}

func TestTurnaroundBonusUsesTierOrFallback(t *testing.T) {
	m := newMatcher()
	e := baseExpert("a")
	e.Rating = 0
	e.CompletedReviews = 0
	e.Specializations = nil

	tests := []struct {
		name       string
		tier       string
		turnaround float64
		want       float64
	}{
		{"quick review too slow", escalation.TierQuickReview, 19, 0},
		{"quick review boundary", escalation.TierQuickReview, 18, 5},
		{"full authentication", escalation.TierFullAuthentication, 54, 5},
		{"unknown tier falls back to 48h", "mystery", 36, 5},
		{"unknown tier too slow", "mystery", 37, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.AverageTurnaround = tt.turnaround
			if got := m.Score(furnitureRequest(tt.tier), e).MatchScore; got != tt.want {
				t.Fatalf("MatchScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpecializationAddsExactlyForty(t *testing.T) {
	m := newMatcher()
	generalist := baseExpert("generalist")
	specialist := baseExpert("specialist")
	specialist.Specializations = append(specialist.Specializations, domain.DomainFurniture)

	req := furnitureRequest(escalation.TierFullAuthentication)
	ranked := m.Rank(req, []domain.Expert{generalist, specialist})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(ranked))
	}
	if ranked[0].Expert.ID != "specialist" {
		t.Fatalf("expected specialist first, got %s", ranked[0].Expert.ID)
	}
	if diff := ranked[0].MatchScore - ranked[1].MatchScore; diff != 40 {
		t.Fatalf("score difference = %v, want 40", diff)
	}
}

func TestInactiveExpertsNeverSelected(t *testing.T) {
	m := newMatcher()
	star := baseExpert("star")
	star.Specializations = []domain.Domain{domain.DomainFurniture}
	star.Rating = 5
	star.CompletedReviews = 500
	star.IsActive = false
	modest := baseExpert("modest")
	modest.Rating = 1

	best, ok := m.FindBestExpert(furnitureRequest(escalation.TierQuickReview), []domain.Expert{star, modest})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Expert.ID != "modest" {
		t.Fatalf("expected modest, got %s", best.Expert.ID)
	}
}

func TestFindBestExpertEmptyPools(t *testing.T) {
	m := newMatcher()
	inactive := baseExpert("x")
	inactive.IsActive = false

	for name, pool := range map[string][]domain.Expert{
		"nil":          nil,
		"all inactive": {inactive, inactive},
	} {
		if _, ok := m.FindBestExpert(furnitureRequest(escalation.TierQuickReview), pool); ok {
			t.Fatalf("%s pool: expected no match", name)
		}
	}
}

func TestTiesKeepPoolOrder(t *testing.T) {
	m := newMatcher()
	pool := []domain.Expert{baseExpert("first"), baseExpert("second"), baseExpert("third")}
	ranked := m.Rank(furnitureRequest(escalation.TierQuickReview), pool)
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].Expert.ID != want {
			t.Fatalf("position %d = %s, want %s", i, ranked[i].Expert.ID, want)
		}
	}
}
