// Package store persists expert requests, expert corrections and escalation
// history in sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vintagevision/internal/domain"
	"vintagevision/internal/requests"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS expert_requests (
		id                   TEXT PRIMARY KEY,
		analysis_id          TEXT DEFAULT '',
		user_id              TEXT DEFAULT '',
		tier_id              TEXT NOT NULL,
		tier_name            TEXT NOT NULL,
		price                INTEGER NOT NULL,
		status               TEXT NOT NULL,
		assigned_expert_id   TEXT DEFAULT '',
		assigned_expert_name TEXT DEFAULT '',
		submitted_at         DATETIME NOT NULL,
		assigned_at          DATETIME,
		completed_at         DATETIME,
		due_at               DATETIME NOT NULL,
		item_name            TEXT DEFAULT '',
		item_category        TEXT DEFAULT '',
		estimated_value      INTEGER DEFAULT 0,
		user_notes           TEXT DEFAULT '',
		expert_notes         TEXT DEFAULT '',
		expert_corrections   TEXT DEFAULT '[]',
		final_report         TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_er_status ON expert_requests(status);
	CREATE INDEX IF NOT EXISTS idx_er_due ON expert_requests(due_at);

	CREATE TABLE IF NOT EXISTS expert_corrections (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id      TEXT NOT NULL,
		analysis_id     TEXT DEFAULT '',
		expert_id       TEXT DEFAULT '',
		item_name       TEXT DEFAULT '',
		item_category   TEXT DEFAULT '',
		position        INTEGER NOT NULL,
		field           TEXT NOT NULL,
		original_value  TEXT DEFAULT '',
		corrected_value TEXT DEFAULT '',
		explanation     TEXT DEFAULT '',
		corrected_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ec_date ON expert_corrections(corrected_at);
	CREATE INDEX IF NOT EXISTS idx_ec_request ON expert_corrections(request_id);

	CREATE TABLE IF NOT EXISTS escalation_history (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id  TEXT DEFAULT '',
		category     TEXT DEFAULT '',
		should_offer INTEGER NOT NULL,
		urgency      TEXT NOT NULL,
		tier_id      TEXT DEFAULT '',
		triggers     TEXT DEFAULT '',
		reasons      TEXT DEFAULT '[]',
		evaluated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_eh_date ON escalation_history(evaluated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const requestColumns = `id, analysis_id, user_id, tier_id, tier_name, price, status,
	assigned_expert_id, assigned_expert_name, submitted_at, assigned_at, completed_at, due_at,
	item_name, item_category, estimated_value, user_notes, expert_notes, expert_corrections, final_report`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (s *Store) CreateExpertRequest(ctx context.Context, req domain.ExpertRequest) error {
	corrections, err := json.Marshal(nonNilCorrections(req.ExpertCorrections))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO expert_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.AnalysisID, req.UserID, req.TierID, req.TierName, req.Price, string(req.Status),
		req.AssignedExpertID, req.AssignedExpertName, req.SubmittedAt.UTC(),
		nullTime(req.AssignedAt), nullTime(req.CompletedAt), req.DueAt.UTC(),
		req.ItemName, string(req.ItemCategory), req.EstimatedValue, req.UserNotes,
		req.ExpertNotes, string(corrections), req.FinalReport,
	)
	return err
}

// UpdateExpertRequest writes the mutable fields. Tier and item snapshots are
// never rewritten.
func (s *Store) UpdateExpertRequest(ctx context.Context, req domain.ExpertRequest) error {
	corrections, err := json.Marshal(nonNilCorrections(req.ExpertCorrections))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE expert_requests
		 SET status = ?, assigned_expert_id = ?, assigned_expert_name = ?,
		     assigned_at = ?, completed_at = ?, expert_notes = ?, expert_corrections = ?, final_report = ?
		 WHERE id = ?`,
		string(req.Status), req.AssignedExpertID, req.AssignedExpertName,
		nullTime(req.AssignedAt), nullTime(req.CompletedAt), req.ExpertNotes,
		string(corrections), req.FinalReport, req.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", requests.ErrNotFound, req.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.ExpertRequest, error) {
	var (
		req                     domain.ExpertRequest
		status, category, corrs string
		assignedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&req.ID, &req.AnalysisID, &req.UserID, &req.TierID, &req.TierName, &req.Price, &status,
		&req.AssignedExpertID, &req.AssignedExpertName, &req.SubmittedAt, &assignedAt, &completedAt, &req.DueAt,
		&req.ItemName, &category, &req.EstimatedValue, &req.UserNotes, &req.ExpertNotes, &corrs, &req.FinalReport,
	)
	if err != nil {
		return req, err
	}
	req.Status = domain.ExpertRequestStatus(status)
	req.ItemCategory = domain.Domain(category)
	if assignedAt.Valid {
		t := assignedAt.Time
		req.AssignedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		req.CompletedAt = &t
	}
	if strings.TrimSpace(corrs) != "" {
		if err := json.Unmarshal([]byte(corrs), &req.ExpertCorrections); err != nil {
			return req, fmt.Errorf("decode corrections for %s: %w", req.ID, err)
		}
	}
	if len(req.ExpertCorrections) == 0 {
		req.ExpertCorrections = nil
	}
	return req, nil
}

func (s *Store) GetExpertRequest(ctx context.Context, id string) (domain.ExpertRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM expert_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExpertRequest{}, fmt.Errorf("%w: %s", requests.ErrNotFound, id)
	}
	return req, err
}

// ListOpenExpertRequests returns every non-terminal request, earliest due first.
func (s *Store) ListOpenExpertRequests(ctx context.Context) ([]domain.ExpertRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM expert_requests
		 WHERE status NOT IN (?, ?)
		 ORDER BY due_at, id`,
		string(domain.StatusCompleted), string(domain.StatusCancelled),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExpertRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func nonNilCorrections(c []domain.Correction) []domain.Correction {
	if c == nil {
		return []domain.Correction{}
	}
	return c
}
