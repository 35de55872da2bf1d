package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
	"vintagevision/internal/requests"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vintagevision-test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRequest(id string, status domain.ExpertRequestStatus, due time.Time) domain.ExpertRequest {
	return domain.ExpertRequest{
		ID:             id,
		AnalysisID:     "analysis-" + id,
		UserID:         "user-1",
		TierID:         escalation.TierQuickReview,
		TierName:       "Quick Expert Review",
		Price:          4_900,
		Status:         status,
		SubmittedAt:    due.Add(-24 * time.Hour),
		DueAt:          due,
		ItemName:       "Jasperware vase",
		ItemCategory:   domain.DomainCeramics,
		EstimatedValue: 45_000,
	}
}

func TestExpertRequestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	due := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	req := sampleRequest("r1", domain.StatusPendingPayment, due)
	if err := s.CreateExpertRequest(ctx, req); err != nil {
		t.Fatalf("CreateExpertRequest failed: %v", err)
	}
	got, err := s.GetExpertRequest(ctx, "r1")
	if err != nil {
		t.Fatalf("GetExpertRequest failed: %v", err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	assigned := due.Add(-20 * time.Hour)
	completed := due.Add(-2 * time.Hour)
	req.Status = domain.StatusCompleted
	req.AssignedExpertID = "e1"
	req.AssignedExpertName = "Ada"
	req.AssignedAt = &assigned
	req.CompletedAt = &completed
	req.ExpertNotes = "Impressed mark visible."
	req.ExpertCorrections = []domain.Correction{{Field: "era", OriginalValue: "1900", CorrectedValue: "1870"}}
	req.FinalReport = "Authentic."
	if err := s.UpdateExpertRequest(ctx, req); err != nil {
		t.Fatalf("UpdateExpertRequest failed: %v", err)
	}
	got, err = s.GetExpertRequest(ctx, "r1")
	if err != nil {
		t.Fatalf("GetExpertRequest failed: %v", err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Fatalf("updated request mismatch (-want +got):\n%s", diff)
	}
}

func TestExpertRequestNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.GetExpertRequest(ctx, "missing"); !errors.Is(err, requests.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	req := sampleRequest("ghost", domain.StatusAssigned, time.Now().UTC())
	if err := s.UpdateExpertRequest(ctx, req); !errors.Is(err, requests.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestListOpenExpertRequests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	for _, r := range []domain.ExpertRequest{
		sampleRequest("late", domain.StatusInReview, base.Add(2*time.Hour)),
		sampleRequest("done", domain.StatusCompleted, base),
		sampleRequest("early", domain.StatusAssigned, base.Add(time.Hour)),
		sampleRequest("gone", domain.StatusCancelled, base),
	} {
		if err := s.CreateExpertRequest(ctx, r); err != nil {
			t.Fatalf("CreateExpertRequest(%s) failed: %v", r.ID, err)
		}
	}
	open, err := s.ListOpenExpertRequests(ctx)
	if err != nil {
		t.Fatalf("ListOpenExpertRequests failed: %v", err)
	}
	var ids []string
	for _, r := range open {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"early", "late"}, ids); diff != "" {
		t.Fatalf("open requests mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordCorrectionsKeepsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := requests.CorrectionBatch{
		RequestID:    "r1",
		ExpertID:     "e1",
		ItemName:     "Omega Seamaster",
		ItemCategory: domain.DomainWatches,
		Corrections: []domain.Correction{
			{Field: "maker", OriginalValue: "Longines", CorrectedValue: "Omega"},
			{Field: "era", OriginalValue: "1970", CorrectedValue: "1958"},
			{Field: "maker", OriginalValue: "Omega", CorrectedValue: "Omega SA"},
		},
	}
	if err := s.RecordCorrections(ctx, batch); err != nil {
		t.Fatalf("RecordCorrections failed: %v", err)
	}
	if err := s.RecordCorrections(ctx, requests.CorrectionBatch{RequestID: "empty"}); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}

	got, err := s.GetRecentCorrections(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("GetRecentCorrections failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 corrections, got %d", len(got))
	}
	// Newest first; rows share a timestamp so id order decides.
	for i, want := range []int{2, 1, 0} {
		if got[i].Position != want {
			t.Fatalf("row %d position = %d, want %d", i, got[i].Position, want)
		}
	}
	if got[0].ItemCategory != domain.DomainWatches || got[0].CorrectedValue != "Omega SA" {
		t.Fatalf("unexpected newest correction: %+v", got[0])
	}

	byField, err := s.GetCorrectionsByField(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetCorrectionsByField failed: %v", err)
	}
	want := []FieldCorrectionStat{{Field: "maker", CorrectionCount: 2}, {Field: "era", CorrectionCount: 1}}
	if diff := cmp.Diff(want, byField); diff != "" {
		t.Fatalf("field stats mismatch (-want +got):\n%s", diff)
	}
}

func TestEscalationHistoryAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := escalation.DefaultConfig()

	analyses := []domain.AnalysisResult{
		{ID: "a1", Confidence: 1, DomainExpert: domain.DomainFurniture, AuthenticityRisk: domain.RiskNone},
		{ID: "a2", Confidence: 0.9, DomainExpert: domain.DomainArt, AuthenticityRisk: domain.RiskVeryHigh},
		{ID: "a3", Confidence: 0.4, DomainExpert: domain.DomainFurniture, AuthenticityRisk: domain.RiskLow},
	}
	for _, a := range analyses {
		rec := NewEscalationRecord(a, escalation.Evaluate(a, cfg))
		if err := s.InsertEscalationRecord(ctx, rec); err != nil {
			t.Fatalf("InsertEscalationRecord(%s) failed: %v", a.ID, err)
		}
	}

	latest, err := s.GetLatestEscalation(ctx, "a2")
	if err != nil {
		t.Fatalf("GetLatestEscalation failed: %v", err)
	}
	if !latest.ShouldOffer || latest.Urgency != domain.UrgencyCritical || latest.TierID != escalation.TierFullAuthentication {
		t.Fatalf("unexpected record: %+v", latest)
	}
	if len(latest.Reasons) == 0 || len(latest.Triggers) != len(latest.Reasons) {
		t.Fatalf("expected reasons and triggers, got %+v", latest)
	}

	stats, err := s.GetEscalationStats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetEscalationStats failed: %v", err)
	}
	if stats.TotalEvaluations != 3 || stats.Offered != 2 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.UrgencyLow != 1 || stats.UrgencyCritical != 1 {
		t.Fatalf("unexpected urgency buckets: %+v", stats)
	}
}
