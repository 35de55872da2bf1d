package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
)

type EscalationRecord struct {
	ID          int64
	AnalysisID  string
	Category    domain.Domain
	ShouldOffer bool
	Urgency     domain.Urgency
	TierID      string
	Triggers    []escalation.Trigger
	Reasons     []string
	EvaluatedAt time.Time
}

// NewEscalationRecord flattens one evaluation for storage.
func NewEscalationRecord(a domain.AnalysisResult, ev escalation.Evaluation) EscalationRecord {
	r := EscalationRecord{
		AnalysisID:  a.ID,
		Category:    a.DomainExpert,
		ShouldOffer: ev.ShouldOffer,
		Urgency:     ev.Urgency,
		Triggers:    ev.Triggers,
		Reasons:     ev.Reasons,
	}
	if ev.RecommendedTier != nil {
		r.TierID = ev.RecommendedTier.ID
	}
	return r
}

func (s *Store) InsertEscalationRecord(ctx context.Context, r EscalationRecord) error {
	reasons, err := json.Marshal(r.Reasons)
	if err != nil {
		return err
	}
	triggers := make([]string, len(r.Triggers))
	for i, t := range r.Triggers {
		triggers[i] = string(t)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO escalation_history (analysis_id, category, should_offer, urgency, tier_id, triggers, reasons)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.AnalysisID, string(r.Category), r.ShouldOffer, string(r.Urgency), r.TierID,
		strings.Join(triggers, ","), string(reasons),
	)
	return err
}

// GetLatestEscalation returns the newest record for an analysis.
func (s *Store) GetLatestEscalation(ctx context.Context, analysisID string) (EscalationRecord, error) {
	var r EscalationRecord
	var category, urgency, triggers, reasons string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, analysis_id, category, should_offer, urgency, tier_id, triggers, reasons, evaluated_at
		 FROM escalation_history
		 WHERE analysis_id = ?
		 ORDER BY evaluated_at DESC, id DESC LIMIT 1`,
		analysisID,
	).Scan(&r.ID, &r.AnalysisID, &category, &r.ShouldOffer, &urgency, &r.TierID, &triggers, &reasons, &r.EvaluatedAt)
	if err != nil {
		return r, err
	}
	r.Category = domain.Domain(category)
	r.Urgency = domain.Urgency(urgency)
	if triggers != "" {
		for _, t := range strings.Split(triggers, ",") {
			r.Triggers = append(r.Triggers, escalation.Trigger(t))
		}
	}
	if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
		return r, err
	}
	return r, nil
}

type EscalationStats struct {
	TotalEvaluations int
	Offered          int
	UrgencyLow       int
	UrgencyMedium    int
	UrgencyHigh      int
	UrgencyCritical  int
	TotalCorrections int
}

func (s *Store) GetEscalationStats(ctx context.Context, since time.Time) (EscalationStats, error) {
	var st EscalationStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN should_offer THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN urgency = 'low' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN urgency = 'medium' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN urgency = 'high' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN urgency = 'critical' THEN 1 ELSE 0 END), 0)
		 FROM escalation_history WHERE evaluated_at >= ?`,
		since.UTC(),
	).Scan(&st.TotalEvaluations, &st.Offered,
		&st.UrgencyLow, &st.UrgencyMedium, &st.UrgencyHigh, &st.UrgencyCritical)
	if err != nil {
		return st, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expert_corrections WHERE corrected_at >= ?`,
		since.UTC(),
	).Scan(&st.TotalCorrections)
	return st, err
}
