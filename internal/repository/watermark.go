package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WatermarkRepository persists the single run watermark row. The
// orchestrator is the only writer; GREATEST keeps it monotonic even if
// a stale advance is attempted.
type WatermarkRepository struct {
	pool *pgxpool.Pool
}

func NewWatermarkRepository(pool *pgxpool.Pool) *WatermarkRepository {
	return &WatermarkRepository{pool: pool}
}

// Get returns the watermark and whether one has been recorded yet.
func (r *WatermarkRepository) Get(ctx context.Context) (time.Time, bool, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT last_processed_at FROM run_watermark WHERE id = TRUE`,
	).Scan(&at)
	if err != nil {
		if isNoRows(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return at, true, nil
}

// Advance moves the watermark forward; it never moves it back.
func (r *WatermarkRepository) Advance(ctx context.Context, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO run_watermark (id, last_processed_at)
		 VALUES (TRUE, $1)
		 ON CONFLICT (id) DO UPDATE SET
			last_processed_at = GREATEST(run_watermark.last_processed_at, EXCLUDED.last_processed_at)`,
		at,
	)
	return err
}
