package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(EnvEmbeddingAPIKey, "")
	t.Setenv(EnvRedisURL, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.Equal(t, "fixed", cfg.Chunking.Strategy)
	assert.Equal(t, 1000, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 20, cfg.Pipeline.BatchSize)
	assert.Equal(t, 4, cfg.Pipeline.ConcurrencyLimit)
	assert.Empty(t, cfg.Lock.RedisURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFillsMissingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
store:
  backend: qdrant
  in_memory: true
  qdrant:
    url: http://localhost:6333
    collection: docs
embedding:
  model: text-embedding-3-small
  dimensions: 1536
  timeout: 5s
chunking:
  strategy: headers
pipeline:
  batch_size: 8
  run_timeout: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendQdrant, cfg.Store.Backend)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, "docs", cfg.Store.Qdrant.Collection)
	assert.Equal(t, 15*time.Second, cfg.Store.Qdrant.Timeout)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, "headers", cfg.Chunking.Strategy)
	assert.Equal(t, 8, cfg.Pipeline.BatchSize)
	assert.Equal(t, 4, cfg.Pipeline.ConcurrencyLimit)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.RunTimeout)
	require.NoError(t, cfg.Validate())

	ai := cfg.AI()
	assert.Equal(t, 1536, ai.Dimensions)
	assert.Equal(t, "text-embedding-3-small", ai.EmbeddingModel)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvEmbeddingAPIKey, "sk-env")
	t.Setenv(EnvQdrantAPIKey, "qd-env")
	t.Setenv(EnvRedisURL, "localhost:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Embedding.APIKey)
	assert.Equal(t, "qd-env", cfg.Store.Qdrant.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Lock.RedisURL)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Pipeline.RunTimeout = 90 * time.Second
	cfg.Chunking.Strategy = "headers"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, loaded.Pipeline.RunTimeout)
	assert.Equal(t, "headers", loaded.Chunking.Strategy)
	assert.Equal(t, cfg.Store.Path, loaded.Store.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }},
		{"qdrant without url", func(c *Config) { c.Store.Backend = BackendQdrant; c.Store.Qdrant.Collection = "docs" }},
		{"missing path", func(c *Config) { c.Store.Path = "" }},
		{"unknown strategy", func(c *Config) { c.Chunking.Strategy = "sentences" }},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.MaxChunkSize }},
		{"zero batch size", func(c *Config) { c.Pipeline.BatchSize = 0 }},
		{"missing model", func(c *Config) { c.Embedding.Model = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
