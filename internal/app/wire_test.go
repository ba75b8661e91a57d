package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/stitchrag/internal/config"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Index.Backend = "memory"
	cfg.Embedding.Project = "proj"
	cfg.Embedding.AccessToken = "token"
	cfg.Database.Path = filepath.Join(dir, "runs.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_WiresOfflineComponents(t *testing.T) {
	cfg := offlineConfig(t)

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Retriever)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Runs)
	assert.Nil(t, a.Storage)
	assert.Equal(t, cfg.VectorWidth(), a.Encoder.Width())
}

func TestClose_ReleasesRunLedger(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t), Options{})
	require.NoError(t, err)

	sqlDB, err := a.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())

	a.Close()
	assert.Error(t, sqlDB.Ping(), "pool must be closed")
}

func TestNew_LedgerDisabled(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Database.Enabled = false

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.Nil(t, a.Runs)
	assert.Nil(t, a.db)
	a.Close()
}

func TestNew_RequiresCredentials(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Embedding.AccessToken = ""
	cfg.Embedding.AccessTokenEnv = ""

	_, err := New(context.Background(), cfg, Options{})
	assert.Error(t, err)
}
