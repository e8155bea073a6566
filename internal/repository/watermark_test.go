//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantagesec/socqa/internal/testutil"
)

func TestWatermarkRepository_GetBeforeFirstRun(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../database/migrations")
	defer pool.Close()

	repo := NewWatermarkRepository(pool)

	_, found, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWatermarkRepository_AdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../database/migrations")
	defer pool.Close()

	repo := NewWatermarkRepository(pool)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Advance(ctx, first))

	at, found, err := repo.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, at.Equal(first))

	// A stale advance must not move the watermark back.
	require.NoError(t, repo.Advance(ctx, first.Add(-time.Hour)))

	at, found, err = repo.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, at.Equal(first))

	later := first.Add(30 * time.Minute)
	require.NoError(t, repo.Advance(ctx, later))

	at, found, err = repo.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, at.Equal(later))
}
