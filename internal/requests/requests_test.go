package requests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
	"vintagevision/internal/matching"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu   sync.Mutex
	reqs map[string]domain.ExpertRequest
}

func newMemStore() *memStore {
	return &memStore{reqs: map[string]domain.ExpertRequest{}}
}

func (s *memStore) CreateExpertRequest(_ context.Context, req domain.ExpertRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.ID] = req
	return nil
}

func (s *memStore) GetExpertRequest(_ context.Context, id string) (domain.ExpertRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[id]
	if !ok {
		return domain.ExpertRequest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return req, nil
}

func (s *memStore) UpdateExpertRequest(_ context.Context, req domain.ExpertRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.ID] = req
	return nil
}

func (s *memStore) ListOpenExpertRequests(_ context.Context) ([]domain.ExpertRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ExpertRequest
	for _, r := range s.reqs {
		if !r.Status.Terminal() {
			out = append(out, r)
		}
	}
	return out, nil
}

type staticExperts []domain.Expert

func (s staticExperts) Experts(context.Context) ([]domain.Expert, error) { return s, nil }

type recordingNotifier struct {
	assigned  []string
	unmatched []string
	overdue   []string
}

func (n *recordingNotifier) NotifyAssignment(_ context.Context, req domain.ExpertRequest, e domain.Expert) error {
	n.assigned = append(n.assigned, req.ID+":"+e.ID)
	return nil
}

func (n *recordingNotifier) NotifyUnmatched(_ context.Context, req domain.ExpertRequest) error {
	n.unmatched = append(n.unmatched, req.ID)
	return nil
}

func (n *recordingNotifier) NotifyOverdue(_ context.Context, req domain.ExpertRequest, e domain.Expert) error {
	n.overdue = append(n.overdue, req.ID+":"+e.ID)
	return nil
}

func sampleInput(tier string) CreateInput {
	return CreateInput{
		UserID: "user-1",
		TierID: tier,
		Analysis: domain.AnalysisResult{
			ID:                "analysis-1",
			Name:              "Georgian silver teapot",
			DomainExpert:      domain.DomainSilver,
			EstimatedValueMin: 80_000,
			EstimatedValueMax: 120_000,
		},
	}
}

func TestNewExpertRequestSnapshotsTierAndItem(t *testing.T) {
	cfg := escalation.DefaultConfig()
	req, err := NewExpertRequest(sampleInput(escalation.TierFullAuthentication), cfg, fixedNow)
	if err != nil {
		t.Fatalf("NewExpertRequest failed: %v", err)
	}
	if req.ID == "" {
		t.Fatal("expected generated id")
	}
	if req.Status != domain.StatusPendingPayment {
		t.Fatalf("status = %s", req.Status)
	}
	if !req.DueAt.Equal(fixedNow.Add(72 * time.Hour)) {
		t.Fatalf("DueAt = %s", req.DueAt)
	}
	if req.TierName != "Full Authentication" || req.Price != 14_900 {
		t.Fatalf("unexpected tier snapshot: %s %d", req.TierName, req.Price)
	}
	if req.AnalysisID != "analysis-1" || req.ItemName != "Georgian silver teapot" || req.EstimatedValue != 100_000 {
		t.Fatalf("unexpected item snapshot: %+v", req)
	}

	// Later config changes must not alter the request.
	cfg.Tiers[1].TurnaroundHours = 1
	cfg.Tiers[1].Price = 1
	if !req.DueAt.Equal(fixedNow.Add(72*time.Hour)) || req.Price != 14_900 {
		t.Fatal("request changed after config mutation")
	}
}

func TestNewExpertRequestRejectsUnknownTier(t *testing.T) {
	_, err := NewExpertRequest(sampleInput("platinum"), escalation.DefaultConfig(), fixedNow)
	if !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to domain.ExpertRequestStatus
		ok       bool
	}{
		{domain.StatusPendingPayment, domain.StatusPendingAssignment, true},
		{domain.StatusPendingPayment, domain.StatusAssigned, false},
		{domain.StatusPendingAssignment, domain.StatusAssigned, true},
		{domain.StatusAssigned, domain.StatusInReview, true},
		{domain.StatusInReview, domain.StatusCompleted, true},
		{domain.StatusAssigned, domain.StatusCompleted, false},
		{domain.StatusInReview, domain.StatusCancelled, true},
		{domain.StatusCompleted, domain.StatusCancelled, false},
		{domain.StatusCancelled, domain.StatusPendingAssignment, false},
	}
	for _, tt := range tests {
		req := domain.ExpertRequest{Status: tt.from}
		err := Transition(&req, tt.to, fixedNow)
		if tt.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestProcessExpertFeedback(t *testing.T) {
	req := domain.ExpertRequest{ID: "r1", ItemCategory: domain.DomainCeramics}
	corrections := []domain.Correction{
		{Field: "maker", OriginalValue: "Spode", CorrectedValue: "Minton", Explanation: "impressed mark"},
		{Field: "era", OriginalValue: "1820", CorrectedValue: "1860"},
	}

	var got []CorrectionBatch
	sink := SinkFunc(func(_ context.Context, b CorrectionBatch) error {
		got = append(got, b)
		return nil
	})

	res, err := ProcessExpertFeedback(context.Background(), req, Feedback{Corrections: corrections}, sink)
	if err != nil {
		t.Fatalf("ProcessExpertFeedback failed: %v", err)
	}
	if !res.HadCorrections || res.CorrectionCount != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(got) != 1 {
		t.Fatalf("expected one batch, got %d", len(got))
	}
	if diff := cmp.Diff(corrections, got[0].Corrections); diff != "" {
		t.Fatalf("corrections mismatch (-want +got):\n%s", diff)
	}
	if got[0].ItemCategory != domain.DomainCeramics {
		t.Fatalf("ItemCategory = %s", got[0].ItemCategory)
	}

	res, err = ProcessExpertFeedback(context.Background(), req, Feedback{}, sink)
	if err != nil || res.HadCorrections || res.CorrectionCount != 0 {
		t.Fatalf("empty feedback: res=%+v err=%v", res, err)
	}
	if len(got) != 1 {
		t.Fatal("sink must not be called without corrections")
	}
}

func TestMultiSinkTriesAllAndReturnsFirstError(t *testing.T) {
	calls := 0
	first := errors.New("first")
	fail := func(err error) CorrectionSink {
		return SinkFunc(func(context.Context, CorrectionBatch) error {
			calls++
			return err
		})
	}
	sink := MultiSink{fail(first), nil, fail(errors.New("second")), fail(nil)}
	err := sink.RecordCorrections(context.Background(), CorrectionBatch{})
	if !errors.Is(err, first) {
		t.Fatalf("expected first error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func newTestManager(experts ...domain.Expert) (*Manager, *recordingNotifier, *[]CorrectionBatch) {
	notifier := &recordingNotifier{}
	var batches []CorrectionBatch
	cfg := escalation.DefaultConfig()
	m := &Manager{
		Store:    newMemStore(),
		Experts:  staticExperts(experts),
		Notifier: notifier,
		Matcher:  matching.Matcher{Tiers: cfg.Tiers},
		Config:   cfg,
		Now:      func() time.Time { return fixedNow },
		Sink: SinkFunc(func(_ context.Context, b CorrectionBatch) error {
			batches = append(batches, b)
			return nil
		}),
	}
	return m, notifier, &batches
}

func TestManagerFullLifecycle(t *testing.T) {
	silver := domain.Expert{ID: "e1", Name: "Ada", Specializations: []domain.Domain{domain.DomainSilver}, Rating: 4.8, IsActive: true, AverageTurnaround: 40}
	m, notifier, batches := newTestManager(silver)
	ctx := context.Background()

	req, err := m.Create(ctx, sampleInput(escalation.TierQuickReview))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, _, _, err := m.AutoAssign(ctx, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("assigning an unpaid request should fail, got %v", err)
	}
	if _, err := m.MarkPaid(ctx, req.ID); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	assigned, match, ok, err := m.AutoAssign(ctx, req.ID)
	if err != nil || !ok {
		t.Fatalf("AutoAssign ok=%v err=%v", ok, err)
	}
	if assigned.AssignedExpertID != "e1" || assigned.AssignedAt == nil || match.Expert.ID != "e1" {
		t.Fatalf("unexpected assignment: %+v", assigned)
	}
	if diff := cmp.Diff([]string{req.ID + ":e1"}, notifier.assigned); diff != "" {
		t.Fatalf("assignment notifications mismatch (-want +got):\n%s", diff)
	}
	if _, err := m.StartReview(ctx, req.ID); err != nil {
		t.Fatalf("StartReview failed: %v", err)
	}

	fb := Feedback{
		ExpertNotes: "Hallmarks confirm London 1790.",
		Corrections: []domain.Correction{{Field: "era", OriginalValue: "1820", CorrectedValue: "1790"}},
		FinalReport: "Authentic.",
	}
	done, res, err := m.Complete(ctx, req.ID, fb)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.CompletedAt == nil || done.FinalReport != "Authentic." {
		t.Fatalf("unexpected completed request: %+v", done)
	}
	if res.CorrectionCount != 1 || len(*batches) != 1 || (*batches)[0].ExpertID != "e1" {
		t.Fatalf("unexpected feedback forwarding: res=%+v batches=%+v", res, *batches)
	}
	if _, err := m.Cancel(ctx, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelling a completed request should fail, got %v", err)
	}
}

func TestManagerAutoAssignWithoutMatch(t *testing.T) {
	m, notifier, _ := newTestManager(domain.Expert{ID: "off", IsActive: false})
	ctx := context.Background()

	req, err := m.Create(ctx, sampleInput(escalation.TierQuickReview))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.MarkPaid(ctx, req.ID); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	got, _, ok, err := m.AutoAssign(ctx, req.ID)
	if err != nil {
		t.Fatalf("no match must not be an error, got %v", err)
	}
	if ok || got.Status != domain.StatusPendingAssignment {
		t.Fatalf("expected request to stay pending_assignment, ok=%v status=%s", ok, got.Status)
	}
	if len(notifier.unmatched) != 1 {
		t.Fatalf("expected unmatched notification, got %v", notifier.unmatched)
	}
}

func TestManagerUnknownRequest(t *testing.T) {
	m, _, _ := newTestManager()
	if _, err := m.MarkPaid(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerCompleteRejectsInvalidFeedback(t *testing.T) {
	m, _, _ := newTestManager()
	_, _, err := m.Complete(context.Background(), "any", Feedback{Corrections: []domain.Correction{{CorrectedValue: "x"}}})
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("expected ErrInvalidFeedback, got %v", err)
	}
}

func TestManagerOverdueAndReminders(t *testing.T) {
	expert := domain.Expert{ID: "e1", Name: "Ada", IsActive: true}
	m, notifier, _ := newTestManager(expert)
	ctx := context.Background()

	req, err := m.Create(ctx, sampleInput(escalation.TierQuickReview))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.MarkPaid(ctx, req.ID); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if _, _, ok, err := m.AutoAssign(ctx, req.ID); err != nil || !ok {
		t.Fatalf("AutoAssign ok=%v err=%v", ok, err)
	}

	overdue, err := m.Overdue(ctx)
	if err != nil || len(overdue) != 0 {
		t.Fatalf("nothing should be overdue yet: %v %v", overdue, err)
	}

	m.Now = func() time.Time { return fixedNow.Add(25 * time.Hour) }
	sent, err := m.RemindOverdue(ctx)
	if err != nil {
		t.Fatalf("RemindOverdue failed: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if diff := cmp.Diff([]string{req.ID + ":e1"}, notifier.overdue); diff != "" {
		t.Fatalf("overdue notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestIsOverdueIgnoresUnassigned(t *testing.T) {
	req := domain.ExpertRequest{Status: domain.StatusPendingAssignment, DueAt: fixedNow}
	if IsOverdue(req, fixedNow.Add(time.Hour)) {
		t.Fatal("pending assignment requests are never overdue")
	}
	req.Status = domain.StatusInReview
	if IsOverdue(req, fixedNow) {
		t.Fatal("request due exactly now is not overdue")
	}
	if !IsOverdue(req, fixedNow.Add(time.Second)) {
		t.Fatal("expected overdue")
	}
}
