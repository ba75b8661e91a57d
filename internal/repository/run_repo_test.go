package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/stitchrag/internal/config"
	"github.com/timmy/stitchrag/internal/domain"
)

func newTestDB(t *testing.T) *RunRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "runs.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewRunRepository(db)
}

func TestRunRepository_Lifecycle(t *testing.T) {
	repo := newTestDB(t)
	ctx := context.Background()

	chunk := &domain.StageRun{RunID: "r1", Stage: "chunk", StartedAt: time.Now().Add(-time.Minute)}
	require.NoError(t, repo.Start(ctx, chunk))
	assert.NotEmpty(t, chunk.ID)
	require.NoError(t, repo.Complete(ctx, chunk, 4, "outputs"))

	load := &domain.StageRun{RunID: "r1", Stage: "load"}
	require.NoError(t, repo.Start(ctx, load))
	require.NoError(t, repo.Fail(ctx, load, errors.New("qdrant unavailable")))

	runs, err := repo.ListByRunID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "chunk", runs[0].Stage)
	assert.Equal(t, domain.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 4, runs[0].Items)
	assert.Equal(t, domain.RunStatusFailed, runs[1].Status)
	assert.Equal(t, "qdrant unavailable", runs[1].Error)
	assert.NotNil(t, runs[1].CompletedAt)

	recent, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "load", recent[0].Stage)
}
