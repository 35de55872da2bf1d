package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vintagevision/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS experts (
	id                       TEXT PRIMARY KEY,
	name                     TEXT NOT NULL,
	email                    TEXT NOT NULL DEFAULT '',
	slack_id                 TEXT NOT NULL DEFAULT '',
	specializations          TEXT[] NOT NULL DEFAULT '{}',
	certifications           TEXT[] NOT NULL DEFAULT '{}',
	rating                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	completed_reviews        INTEGER NOT NULL DEFAULT 0,
	average_turnaround_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_active                BOOLEAN NOT NULL DEFAULT TRUE
);
`

const selectExperts = `
SELECT id, name, email, slack_id, specializations, certifications,
       rating, completed_reviews, average_turnaround_hours, is_active
FROM experts
ORDER BY id`

// Postgres reads the expert pool from a shared database, for deployments
// where the roster is managed outside this service.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect expert directory: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping expert directory: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the experts table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create experts table: %w", err)
	}
	return nil
}

func (p *Postgres) Experts(ctx context.Context) ([]domain.Expert, error) {
	rows, err := p.pool.Query(ctx, selectExperts)
	if err != nil {
		return nil, fmt.Errorf("query experts: %w", err)
	}
	experts, err := pgx.CollectRows(rows, scanExpert)
	if err != nil {
		return nil, fmt.Errorf("scan experts: %w", err)
	}
	return experts, nil
}

// Upsert inserts or replaces an expert row.
func (p *Postgres) Upsert(ctx context.Context, e domain.Expert) error {
	specs := make([]string, len(e.Specializations))
	for i, d := range e.Specializations {
		specs[i] = string(d)
	}
	certs := e.Certifications
	if certs == nil {
		certs = []string{}
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO experts (id, name, email, slack_id, specializations, certifications,
                     rating, completed_reviews, average_turnaround_hours, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	slack_id = EXCLUDED.slack_id,
	specializations = EXCLUDED.specializations,
	certifications = EXCLUDED.certifications,
	rating = EXCLUDED.rating,
	completed_reviews = EXCLUDED.completed_reviews,
	average_turnaround_hours = EXCLUDED.average_turnaround_hours,
	is_active = EXCLUDED.is_active`,
		e.ID, e.Name, e.Email, e.SlackID, specs, certs,
		e.Rating, e.CompletedReviews, e.AverageTurnaround, e.IsActive)
	if err != nil {
		return fmt.Errorf("upsert expert %s: %w", e.ID, err)
	}
	return nil
}

func scanExpert(row pgx.CollectableRow) (domain.Expert, error) {
	var (
		e     domain.Expert
		specs []string
	)
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.SlackID, &specs, &e.Certifications,
		&e.Rating, &e.CompletedReviews, &e.AverageTurnaround, &e.IsActive)
	if err != nil {
		return domain.Expert{}, err
	}
	e.Specializations = normalizeSpecializations(e.ID, toDomains(specs))
	return e, nil
}

func toDomains(in []string) []domain.Domain {
	out := make([]domain.Domain, len(in))
	for i, s := range in {
		out[i] = domain.Domain(s)
	}
	return out
}
