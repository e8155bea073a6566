//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantagesec/socqa/internal/domain"
	"github.com/vantagesec/socqa/internal/testutil"
)

func TestRunRepository_LatestBeforeFirstRun(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../database/migrations")
	defer pool.Close()

	repo := NewRunRepository(pool)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRunRepository_RecordAndLatest(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../database/migrations")
	defer pool.Close()

	repo := NewRunRepository(pool)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := domain.RunSummary{
		ID:          uuid.NewString(),
		StartedAt:   base,
		FinishedAt:  base.Add(5 * time.Minute),
		WindowStart: base.Add(-24 * time.Hour),
		WindowEnd:   base,
		Processed:   4,
		Succeeded:   3,
		Failed:      1,
	}
	require.NoError(t, repo.Record(ctx, older))

	newer := domain.RunSummary{
		ID:          uuid.NewString(),
		StartedAt:   base.Add(time.Hour),
		FinishedAt:  base.Add(time.Hour + 3*time.Minute),
		WindowStart: base,
		WindowEnd:   base.Add(time.Hour),
		Processed:   2,
		Succeeded:   2,
		Failed:      0,
	}
	require.NoError(t, repo.Record(ctx, newer))

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.ID, latest.ID)
	assert.True(t, latest.FinishedAt.Equal(newer.FinishedAt))
	assert.True(t, latest.WindowStart.Equal(newer.WindowStart))
	assert.True(t, latest.WindowEnd.Equal(newer.WindowEnd))
	assert.Equal(t, 2, latest.Processed)
	assert.Equal(t, 2, latest.Succeeded)
	assert.Equal(t, 0, latest.Failed)
}
