package requests

import (
	"context"
	"errors"
	"fmt"

	"vintagevision/internal/domain"
)

// Feedback is what an expert submits when closing a review.
type Feedback struct {
	ExpertNotes string              `json:"expertNotes"`
	Corrections []domain.Correction `json:"corrections"`
	FinalReport string              `json:"finalReport"`
}

type FeedbackResult struct {
	HadCorrections  bool `json:"hadCorrections"`
	CorrectionCount int  `json:"correctionCount"`
}

// CorrectionBatch is the ordered list of corrections from one review, with
// enough item context for a learning consumer to use them.
type CorrectionBatch struct {
	RequestID    string              `json:"requestId"`
	AnalysisID   string              `json:"analysisId"`
	ExpertID     string              `json:"expertId"`
	ItemName     string              `json:"itemName"`
	ItemCategory domain.Domain       `json:"itemCategory"`
	Corrections  []domain.Correction `json:"corrections"`
}

// CorrectionSink receives expert corrections for learning. Implementations
// must preserve the order of Corrections.
type CorrectionSink interface {
	RecordCorrections(ctx context.Context, batch CorrectionBatch) error
}

type SinkFunc func(ctx context.Context, batch CorrectionBatch) error

func (f SinkFunc) RecordCorrections(ctx context.Context, batch CorrectionBatch) error {
	return f(ctx, batch)
}

// MultiSink fans a batch out to every sink. All sinks are tried; the first
// error is returned.
type MultiSink []CorrectionSink

func (m MultiSink) RecordCorrections(ctx context.Context, batch CorrectionBatch) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordCorrections(ctx, batch); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ProcessExpertFeedback counts the corrections in fb and, when there are any
// and sink is non-nil, forwards them in order.
func ProcessExpertFeedback(ctx context.Context, req domain.ExpertRequest, fb Feedback, sink CorrectionSink) (FeedbackResult, error) {
	res := FeedbackResult{
		HadCorrections:  len(fb.Corrections) > 0,
		CorrectionCount: len(fb.Corrections),
	}
	if !res.HadCorrections || sink == nil {
		return res, nil
	}
	batch := CorrectionBatch{
		RequestID:    req.ID,
		AnalysisID:   req.AnalysisID,
		ExpertID:     req.AssignedExpertID,
		ItemName:     req.ItemName,
		ItemCategory: req.ItemCategory,
		Corrections:  append([]domain.Correction(nil), fb.Corrections...),
	}
	if err := sink.RecordCorrections(ctx, batch); err != nil {
		return res, fmt.Errorf("record corrections for %s: %w", req.ID, err)
	}
	return res, nil
}

// ValidateFeedback rejects corrections that name no field.
func ValidateFeedback(fb Feedback) error {
	var errs []error
	for i, c := range fb.Corrections {
		if c.Field == "" {
			errs = append(errs, fmt.Errorf("correction %d: missing field", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFeedback, errors.Join(errs...))
	}
	return nil
}
