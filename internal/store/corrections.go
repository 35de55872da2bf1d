package store

import (
	"context"
	"time"

	"vintagevision/internal/domain"
	"vintagevision/internal/requests"
)

// StoredCorrection is one row of the expert_corrections table.
type StoredCorrection struct {
	ID           int64
	RequestID    string
	AnalysisID   string
	ExpertID     string
	ItemName     string
	ItemCategory domain.Domain
	Position     int
	domain.Correction
	CorrectedAt time.Time
}

// RecordCorrections implements requests.CorrectionSink. Rows keep the
// batch order through the position column.
func (s *Store) RecordCorrections(ctx context.Context, batch requests.CorrectionBatch) error {
	if len(batch.Corrections) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expert_corrections
		 (request_id, analysis_id, expert_id, item_name, item_category, position, field, original_value, corrected_value, explanation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range batch.Corrections {
		if _, err := stmt.ExecContext(ctx,
			batch.RequestID, batch.AnalysisID, batch.ExpertID, batch.ItemName, string(batch.ItemCategory),
			i, c.Field, c.OriginalValue, c.CorrectedValue, c.Explanation,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRecentCorrections returns corrections newest first.
func (s *Store) GetRecentCorrections(ctx context.Context, since time.Time, limit int) ([]StoredCorrection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, analysis_id, expert_id, item_name, item_category, position,
		        field, original_value, corrected_value, explanation, corrected_at
		 FROM expert_corrections
		 WHERE corrected_at >= ?
		 ORDER BY corrected_at DESC, id DESC
		 LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredCorrection
	for rows.Next() {
		var (
			c        StoredCorrection
			category string
		)
		if err := rows.Scan(
			&c.ID, &c.RequestID, &c.AnalysisID, &c.ExpertID, &c.ItemName, &category, &c.Position,
			&c.Field, &c.OriginalValue, &c.CorrectedValue, &c.Explanation, &c.CorrectedAt,
		); err != nil {
			return nil, err
		}
		c.ItemCategory = domain.Domain(category)
		out = append(out, c)
	}
	return out, rows.Err()
}

type FieldCorrectionStat struct {
	Field           string
	CorrectionCount int
}

// GetCorrectionsByField counts corrections per analysis field, most
// corrected first.
func (s *Store) GetCorrectionsByField(ctx context.Context, since time.Time) ([]FieldCorrectionStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, COUNT(*) as cnt
		 FROM expert_corrections
		 WHERE corrected_at >= ?
		 GROUP BY field
		 ORDER BY cnt DESC, field
		 LIMIT 10`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FieldCorrectionStat
	for rows.Next() {
		var f FieldCorrectionStat
		if err := rows.Scan(&f.Field, &f.CorrectionCount); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
