// Package config loads the docvec deployment configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/chunking"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendQdrant = "qdrant"
)

// Environment variables that override file values.
const (
	EnvEmbeddingAPIKey = "DOCVEC_EMBEDDING_API_KEY"
	EnvQdrantAPIKey    = "DOCVEC_QDRANT_API_KEY"
	EnvRedisURL        = "DOCVEC_REDIS_URL"
)

// QdrantConfig locates a Qdrant collection.
type QdrantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key,omitempty"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StoreConfig selects where documents and vectors live. Documents are
// always kept in Badger; vectors go to Badger or Qdrant.
type StoreConfig struct {
	Backend  string       `yaml:"backend"`
	Path     string       `yaml:"path"`
	InMemory bool         `yaml:"in_memory,omitempty"`
	Qdrant   QdrantConfig `yaml:"qdrant"`
}

// EmbeddingConfig configures the provider and the batcher in front of it.
type EmbeddingConfig struct {
	Host              string        `yaml:"host"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key,omitempty"`
	Dimensions        int           `yaml:"dimensions"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
	BreakerFailures   int           `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
	MaxInputBytes     int           `yaml:"max_input_bytes"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy"`
	MaxChunkSize int    `yaml:"max_chunk_size"`
	Overlap      int    `yaml:"overlap"`
}

// PipelineConfig configures ingestion runs.
type PipelineConfig struct {
	BatchSize        int           `yaml:"batch_size"`
	ConcurrencyLimit int           `yaml:"concurrency_limit"`
	UpsertBatchSize  int           `yaml:"upsert_batch_size"`
	PoolSize         int           `yaml:"pool_size"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	EmbedTimeout     time.Duration `yaml:"embed_timeout"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
}

// FetchConfig configures source fetching.
type FetchConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	// FileRoot confines file:// sources to a directory tree when set.
	FileRoot string `yaml:"file_root,omitempty"`
}

// LockConfig enables the cross-process document lock when RedisURL is set.
type LockConfig struct {
	RedisURL string        `yaml:"redis_url,omitempty"`
	TTL      time.Duration `yaml:"ttl"`
}

// BlobConfig locates uploaded document files.
type BlobConfig struct {
	Root string `yaml:"root"`
}

// Config is the root configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Lock      LockConfig      `yaml:"lock"`
	Blob      BlobConfig      `yaml:"blob"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a config from path. If the file does not exist, returns defaults.
// Zero values in the file are replaced by defaults and environment
// variables override secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	cfg.ApplyEnv()
	return &cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// DefaultPath returns ~/.config/docvec/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docvec", "config.yaml"), nil
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvEmbeddingAPIKey); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvQdrantAPIKey); v != "" {
		c.Store.Qdrant.APIKey = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Lock.RedisURL = v
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendBadger:
	case BackendQdrant:
		if c.Store.Qdrant.URL == "" || c.Store.Qdrant.Collection == "" {
			return errors.New("config: qdrant backend needs store.qdrant.url and store.qdrant.collection")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return errors.New("config: store.path is required")
	}
	if _, err := chunking.ParseStrategy(c.Chunking.Strategy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Chunking.MaxChunkSize <= 0 {
		return errors.New("config: chunking.max_chunk_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return errors.New("config: chunking.overlap must be in [0, max_chunk_size)")
	}
	if c.Pipeline.BatchSize <= 0 || c.Pipeline.ConcurrencyLimit <= 0 {
		return errors.New("config: pipeline.batch_size and pipeline.concurrency_limit must be positive")
	}
	return c.AI().Validate()
}

// AI returns the provider configuration.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
		ai.WithRequestsPerMinute(c.Embedding.RequestsPerMinute),
		ai.WithTimeout(c.Embedding.Timeout),
		ai.WithCircuitBreaker(c.Embedding.BreakerFailures, c.Embedding.BreakerCooldown),
	)
}

func applyDefaults(cfg *Config) {
	aiDefaults := ai.DefaultConfig()

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendBadger
	}
	if cfg.Store.Path == "" && !cfg.Store.InMemory {
		cfg.Store.Path = defaultDataPath("db")
	}
	if cfg.Store.Qdrant.Timeout == 0 {
		cfg.Store.Qdrant.Timeout = 15 * time.Second
	}

	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = aiDefaults.EmbeddingHost
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = aiDefaults.EmbeddingModel
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = aiDefaults.Timeout
	}
	if cfg.Embedding.BreakerFailures == 0 {
		cfg.Embedding.BreakerFailures = aiDefaults.BreakerFailures
	}
	if cfg.Embedding.BreakerCooldown == 0 {
		cfg.Embedding.BreakerCooldown = aiDefaults.BreakerCooldown
	}
	if cfg.Embedding.MaxInputBytes == 0 {
		cfg.Embedding.MaxInputBytes = 32 * 1024
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = 3
	}
	if cfg.Embedding.RetryDelay == 0 {
		cfg.Embedding.RetryDelay = 500 * time.Millisecond
	}

	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = string(chunking.StrategyFixed)
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 100
	}

	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 20
	}
	if cfg.Pipeline.ConcurrencyLimit == 0 {
		cfg.Pipeline.ConcurrencyLimit = 4
	}
	if cfg.Pipeline.UpsertBatchSize == 0 {
		cfg.Pipeline.UpsertBatchSize = 100
	}
	if cfg.Pipeline.FetchTimeout == 0 {
		cfg.Pipeline.FetchTimeout = 2 * time.Minute
	}
	if cfg.Pipeline.StoreTimeout == 0 {
		cfg.Pipeline.StoreTimeout = 5 * time.Minute
	}

	if cfg.Fetch.MaxBytes == 0 {
		cfg.Fetch.MaxBytes = 64 << 20
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 30 * time.Second
	}
	if cfg.Blob.Root == "" {
		cfg.Blob.Root = defaultDataPath("files")
	}
}

// defaultDataPath returns ~/.local/share/docvec/<name>, or ./<name> when the
// home directory is unknown.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".local", "share", "docvec", name)
}
