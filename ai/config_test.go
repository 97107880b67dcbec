package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, 0, cfg.Dimensions)
	assert.Equal(t, 5, cfg.BreakerFailures)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with provider options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("https://api.openai.com/v1"),
			WithEmbeddingModel("text-embedding-3-small"),
			WithAPIKey("sk-test"),
			WithDimensions(1536),
			WithRequestsPerMinute(3000),
			WithTimeout(5*time.Second),
			WithCircuitBreaker(3, time.Minute),
		)

		assert.Equal(t, "https://api.openai.com/v1", cfg.EmbeddingHost)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "sk-test", cfg.APIKey)
		assert.Equal(t, 1536, cfg.Dimensions)
		assert.Equal(t, 3000, cfg.RequestsPerMinute)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.Equal(t, 3, cfg.BreakerFailures)
		assert.Equal(t, time.Minute, cfg.BreakerCooldown)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds /v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"strips trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps /v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
			assert.Equal(t, "none", cfg.APIKey)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost is required"},
		{"missing model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel is required"},
		{"negative dimensions", func(c *Config) { c.Dimensions = -1 }, "Dimensions"},
		{"negative rpm", func(c *Config) { c.RequestsPerMinute = -1 }, "RequestsPerMinute"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "Timeout"},
		{"breaker without cooldown", func(c *Config) { c.BreakerCooldown = 0 }, "BreakerCooldown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("breaker disabled needs no cooldown", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BreakerFailures = 0
		cfg.BreakerCooldown = 0
		assert.NoError(t, cfg.Validate())
	})
}
