package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "semantic-text-image-collection", cfg.Index.Collection)
	assert.Equal(t, "cosine", cfg.Index.Metric)
	assert.Equal(t, 500, cfg.Index.InsertBatchSize)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, 250, cfg.Embedding.BatchSize)
	assert.Equal(t, 1024, cfg.Image.Dimensions)
	assert.Equal(t, 1280, cfg.VectorWidth())
	assert.InDelta(t, 0.6, cfg.Query.TextWeight, 1e-9)
	assert.InDelta(t, 0.4, cfg.Query.ImageWeight, 1e-9)
	assert.Equal(t, 10, cfg.Query.TopK)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "rag.yaml")
	body := []byte(`
index:
  backend: memory
  collection: patterns
embedding:
  dimensions: 64
chunker:
  mode: percentile
  percentile: 90
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, "patterns", cfg.Index.Collection)
	assert.Equal(t, 64, cfg.Embedding.Dimensions)
	assert.Equal(t, "percentile", cfg.Chunker.Mode)
	assert.Equal(t, 64+1024, cfg.VectorWidth())
}

func TestLoad_EnvSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VERTEX_ACCESS_TOKEN", "token-123")
	t.Setenv("GCP_PROJECT", "proj")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "token-123", cfg.Embedding.AccessToken)
	assert.Equal(t, "proj", cfg.Embedding.Project)
	assert.NoError(t, cfg.Embedding.ValidateWithCredentials())
}

func TestConfig_Validate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Index.Backend = "chroma" }},
		{"zero image dims", func(c *Config) { c.Image.Dimensions = 0 }},
		{"batch over ceiling", func(c *Config) { c.Embedding.BatchSize = 251 }},
		{"unknown chunker mode", func(c *Config) { c.Chunker.Mode = "fixed" }},
		{"bad percentile", func(c *Config) { c.Chunker.Percentile = 100 }},
		{"threshold above one", func(c *Config) { c.Chunker.SimilarityThreshold = 1.5 }},
		{"threshold below minus one", func(c *Config) { c.Chunker.SimilarityThreshold = -1.01 }},
		{"zero top k", func(c *Config) { c.Query.TopK = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_ValidateThresholdBounds(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	for _, v := range []float64{-1, 0, 1} {
		c := *base
		c.Chunker.SimilarityThreshold = v
		assert.NoError(t, c.Validate(), "threshold %g", v)
	}
}

func TestEmbeddingConfig_Endpoint(t *testing.T) {
	c := EmbeddingConfig{Location: "europe-west4"}
	assert.Equal(t, "https://europe-west4-aiplatform.googleapis.com", c.Endpoint())
	c.BaseURL = "http://localhost:9999"
	assert.Equal(t, "http://localhost:9999", c.Endpoint())
}

func TestEmbeddingConfig_ResolveEnvVars(t *testing.T) {
	t.Setenv("MY_TOKEN", "abc")
	c := EmbeddingConfig{AccessTokenEnv: "MY_TOKEN"}
	c.ResolveEnvVars()
	assert.Equal(t, "abc", c.AccessToken)

	c = EmbeddingConfig{AccessTokenEnv: "MY_TOKEN", AccessToken: "direct"}
	c.ResolveEnvVars()
	assert.Equal(t, "direct", c.AccessToken)
}
