// Package requests owns the expert request lifecycle: creation, status
// transitions and expert feedback.
package requests

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
)

var (
	ErrInvalidTier       = errors.New("invalid tier")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("expert request not found")
	ErrInvalidFeedback   = errors.New("invalid feedback")
)

var transitions = map[domain.ExpertRequestStatus][]domain.ExpertRequestStatus{
	domain.StatusPendingPayment:    {domain.StatusPendingAssignment, domain.StatusCancelled},
	domain.StatusPendingAssignment: {domain.StatusAssigned, domain.StatusCancelled},
	domain.StatusAssigned:          {domain.StatusInReview, domain.StatusCancelled},
	domain.StatusInReview:          {domain.StatusCompleted, domain.StatusCancelled},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to domain.ExpertRequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves req to status to, stamping AssignedAt or CompletedAt.
func Transition(req *domain.ExpertRequest, to domain.ExpertRequestStatus, now time.Time) error {
	if !CanTransition(req.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, to)
	}
	req.Status = to
	switch to {
	case domain.StatusAssigned:
		t := now
		req.AssignedAt = &t
	case domain.StatusCompleted:
		t := now
		req.CompletedAt = &t
	}
	return nil
}

// CreateInput is what a user submits when buying an expert review.
type CreateInput struct {
	AnalysisID string                `json:"analysisId"`
	UserID     string                `json:"userId"`
	TierID     string                `json:"tierId"`
	UserNotes  string                `json:"userNotes,omitempty"`
	Analysis   domain.AnalysisResult `json:"analysis"`
}

// NewExpertRequest builds a pending_payment request. Tier name, price and
// item identity are copied now so later config or analysis changes do not
// alter the request.
func NewExpertRequest(in CreateInput, cfg escalation.Config, now time.Time) (domain.ExpertRequest, error) {
	tierID := strings.TrimSpace(in.TierID)
	tier, ok := cfg.Tier(tierID)
	if !ok {
		return domain.ExpertRequest{}, fmt.Errorf("%w: %q", ErrInvalidTier, in.TierID)
	}
	analysisID := in.AnalysisID
	if analysisID == "" {
		analysisID = in.Analysis.ID
	}
	return domain.ExpertRequest{
		ID:             uuid.NewString(),
		AnalysisID:     analysisID,
		UserID:         in.UserID,
		TierID:         tier.ID,
		TierName:       tier.Name,
		Price:          tier.Price,
		Status:         domain.StatusPendingPayment,
		SubmittedAt:    now,
		DueAt:          now.Add(time.Duration(tier.TurnaroundHours) * time.Hour),
		ItemName:       in.Analysis.Name,
		ItemCategory:   in.Analysis.DomainExpert,
		EstimatedValue: in.Analysis.MidValue(),
		UserNotes:      in.UserNotes,
	}, nil
}

// IsOverdue reports whether an assigned or in-review request has passed its
// due time.
func IsOverdue(req domain.ExpertRequest, now time.Time) bool {
	if req.Status != domain.StatusAssigned && req.Status != domain.StatusInReview {
		return false
	}
	return now.After(req.DueAt)
}
