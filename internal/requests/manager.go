package requests

import (
	"context"
	"fmt"
	"log"
	"time"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
	"vintagevision/internal/matching"
)

// Store persists expert requests. Get returns an error wrapping ErrNotFound
// for unknown ids.
type Store interface {
	CreateExpertRequest(ctx context.Context, req domain.ExpertRequest) error
	GetExpertRequest(ctx context.Context, id string) (domain.ExpertRequest, error)
	UpdateExpertRequest(ctx context.Context, req domain.ExpertRequest) error
	ListOpenExpertRequests(ctx context.Context) ([]domain.ExpertRequest, error)
}

// ExpertSource lists the expert pool. Inactive experts may be included.
type ExpertSource interface {
	Experts(ctx context.Context) ([]domain.Expert, error)
}

// Notifier tells people about request events. Failures are logged by the
// manager and never undo a state change.
type Notifier interface {
	NotifyAssignment(ctx context.Context, req domain.ExpertRequest, expert domain.Expert) error
	NotifyUnmatched(ctx context.Context, req domain.ExpertRequest) error
	NotifyOverdue(ctx context.Context, req domain.ExpertRequest, expert domain.Expert) error
}

type Manager struct {
	Store    Store
	Experts  ExpertSource
	Sink     CorrectionSink
	Notifier Notifier
	Matcher  matching.Matcher
	Config   escalation.Config
	Now      func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Manager) Create(ctx context.Context, in CreateInput) (domain.ExpertRequest, error) {
	req, err := NewExpertRequest(in, m.Config, m.now())
	if err != nil {
		return domain.ExpertRequest{}, err
	}
	if err := m.Store.CreateExpertRequest(ctx, req); err != nil {
		return domain.ExpertRequest{}, fmt.Errorf("store expert request: %w", err)
	}
	log.Printf("expert-request created id=%s tier=%s category=%s due=%s", req.ID, req.TierID, req.ItemCategory, req.DueAt.Format(time.RFC3339))
	return req, nil
}

func (m *Manager) Get(ctx context.Context, id string) (domain.ExpertRequest, error) {
	return m.Store.GetExpertRequest(ctx, id)
}

func (m *Manager) transition(ctx context.Context, id string, to domain.ExpertRequestStatus, mutate func(*domain.ExpertRequest)) (domain.ExpertRequest, error) {
	req, err := m.Store.GetExpertRequest(ctx, id)
	if err != nil {
		return domain.ExpertRequest{}, err
	}
	from := req.Status
	if err := Transition(&req, to, m.now()); err != nil {
		return domain.ExpertRequest{}, err
	}
	if mutate != nil {
		mutate(&req)
	}
	if err := m.Store.UpdateExpertRequest(ctx, req); err != nil {
		return domain.ExpertRequest{}, fmt.Errorf("update expert request %s: %w", id, err)
	}
	log.Printf("expert-request transition id=%s from=%s to=%s", id, from, to)
	return req, nil
}

// MarkPaid records payment and makes the request eligible for assignment.
func (m *Manager) MarkPaid(ctx context.Context, id string) (domain.ExpertRequest, error) {
	return m.transition(ctx, id, domain.StatusPendingAssignment, nil)
}

// AutoAssign picks the best active expert for a paid request. When nobody
// matches the request stays in pending_assignment, the unmatched notifier
// fires, and ok is false with a nil error.
func (m *Manager) AutoAssign(ctx context.Context, id string) (domain.ExpertRequest, domain.ExpertMatch, bool, error) {
	req, err := m.Store.GetExpertRequest(ctx, id)
	if err != nil {
		return domain.ExpertRequest{}, domain.ExpertMatch{}, false, err
	}
	if !CanTransition(req.Status, domain.StatusAssigned) {
		return domain.ExpertRequest{}, domain.ExpertMatch{}, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, domain.StatusAssigned)
	}

	var pool []domain.Expert
	if m.Experts != nil {
		pool, err = m.Experts.Experts(ctx)
		if err != nil {
			return domain.ExpertRequest{}, domain.ExpertMatch{}, false, fmt.Errorf("load experts: %w", err)
		}
	}
	match, ok := m.Matcher.FindBestExpert(req, pool)
	if !ok {
		log.Printf("expert-request unmatched id=%s category=%s pool=%d", req.ID, req.ItemCategory, len(pool))
		if m.Notifier != nil {
			if err := m.Notifier.NotifyUnmatched(ctx, req); err != nil {
				log.Printf("notify unmatched error id=%s: %v", req.ID, err)
			}
		}
		return req, domain.ExpertMatch{}, false, nil
	}

	req, err = m.transition(ctx, id, domain.StatusAssigned, func(r *domain.ExpertRequest) {
		r.AssignedExpertID = match.Expert.ID
		r.AssignedExpertName = match.Expert.Name
	})
	if err != nil {
		return domain.ExpertRequest{}, domain.ExpertMatch{}, false, err
	}
	log.Printf("expert-request assigned id=%s expert=%s score=%.1f", req.ID, match.Expert.ID, match.MatchScore)
	if m.Notifier != nil {
		if err := m.Notifier.NotifyAssignment(ctx, req, match.Expert); err != nil {
			log.Printf("notify assignment error id=%s expert=%s: %v", req.ID, match.Expert.ID, err)
		}
	}
	return req, match, true, nil
}

func (m *Manager) StartReview(ctx context.Context, id string) (domain.ExpertRequest, error) {
	return m.transition(ctx, id, domain.StatusInReview, nil)
}

// Complete stores the expert's notes, corrections and report, then forwards
// corrections to the sink. A sink failure is logged; the request stays
// completed.
func (m *Manager) Complete(ctx context.Context, id string, fb Feedback) (domain.ExpertRequest, FeedbackResult, error) {
	if err := ValidateFeedback(fb); err != nil {
		return domain.ExpertRequest{}, FeedbackResult{}, err
	}
	req, err := m.transition(ctx, id, domain.StatusCompleted, func(r *domain.ExpertRequest) {
		r.ExpertNotes = fb.ExpertNotes
		r.ExpertCorrections = append([]domain.Correction(nil), fb.Corrections...)
		r.FinalReport = fb.FinalReport
	})
	if err != nil {
		return domain.ExpertRequest{}, FeedbackResult{}, err
	}
	res, err := ProcessExpertFeedback(ctx, req, fb, m.Sink)
	if err != nil {
		log.Printf("correction sink error id=%s count=%d: %v", req.ID, res.CorrectionCount, err)
	}
	log.Printf("expert-request completed id=%s corrections=%d", req.ID, res.CorrectionCount)
	return req, res, nil
}

func (m *Manager) Cancel(ctx context.Context, id string) (domain.ExpertRequest, error) {
	return m.transition(ctx, id, domain.StatusCancelled, nil)
}

// Overdue lists assigned or in-review requests past their due time.
func (m *Manager) Overdue(ctx context.Context) ([]domain.ExpertRequest, error) {
	open, err := m.Store.ListOpenExpertRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open expert requests: %w", err)
	}
	now := m.now()
	var out []domain.ExpertRequest
	for _, req := range open {
		if IsOverdue(req, now) {
			out = append(out, req)
		}
	}
	return out, nil
}

// RemindOverdue notifies the assigned expert of every overdue request and
// returns how many reminders were sent.
func (m *Manager) RemindOverdue(ctx context.Context) (int, error) {
	overdue, err := m.Overdue(ctx)
	if err != nil {
		return 0, err
	}
	if len(overdue) == 0 || m.Notifier == nil {
		return 0, nil
	}
	byID := map[string]domain.Expert{}
	if m.Experts != nil {
		pool, err := m.Experts.Experts(ctx)
		if err != nil {
			return 0, fmt.Errorf("load experts: %w", err)
		}
		for _, e := range pool {
			byID[e.ID] = e
		}
	}
	sent := 0
	for _, req := range overdue {
		expert, ok := byID[req.AssignedExpertID]
		if !ok {
			expert = domain.Expert{ID: req.AssignedExpertID, Name: req.AssignedExpertName}
		}
		if err := m.Notifier.NotifyOverdue(ctx, req, expert); err != nil {
			log.Printf("notify overdue error id=%s expert=%s: %v", req.ID, expert.ID, err)
			continue
		}
		sent++
	}
	log.Printf("overdue sweep overdue=%d reminded=%d", len(overdue), sent)
	return sent, nil
}
