package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vantagesec/socqa/internal/domain"
)

// RunRepository records QA pass summaries for the status surface.
type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Record(ctx context.Context, summary domain.RunSummary) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO qa_runs
			(id, started_at, finished_at, window_start, window_end, processed, succeeded, failed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		summary.ID,
		summary.StartedAt,
		summary.FinishedAt,
		summary.WindowStart,
		summary.WindowEnd,
		summary.Processed,
		summary.Succeeded,
		summary.Failed,
	)
	return err
}

// Latest returns the most recent run summary, or nil when no pass has
// completed yet.
func (r *RunRepository) Latest(ctx context.Context) (*domain.RunSummary, error) {
	var s domain.RunSummary
	err := r.pool.QueryRow(ctx,
		`SELECT id, started_at, finished_at, window_start, window_end, processed, succeeded, failed
		 FROM qa_runs
		 ORDER BY finished_at DESC
		 LIMIT 1`,
	).Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.WindowStart, &s.WindowEnd, &s.Processed, &s.Succeeded, &s.Failed)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
