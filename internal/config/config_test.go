package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.StoreURL)
	assert.Equal(t, "CodeFragment", cfg.StoreClass)
	assert.Equal(t, "v1", cfg.EmbedVersion)
	assert.Equal(t, "text-embedding-3-large", cfg.EmbedModel)
	assert.Equal(t, "gpt-4-turbo", cfg.ChatModel)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 10*time.Second, cfg.RetryBackoff)
	assert.Equal(t, int64(5), cfg.EmbedConcurrency)
	assert.Equal(t, 100.0, cfg.MaxBudgetUSD)
	assert.Equal(t, 15, cfg.TopK)
	assert.Equal(t, 600, cfg.MaxSnippetChars)
	assert.Equal(t, 10, cfg.MinLines)
	assert.True(t, cfg.AutoConfirm)
	assert.Equal(t, time.Minute, cfg.PushInterval)

	// All four weight profiles ship by default, each covering the
	// seven retrieval channels.
	require.Contains(t, cfg.Weights, "default")
	for _, profile := range []string{"purpose", "implementation", "parameter", "default"} {
		require.Contains(t, cfg.Weights, profile)
		assert.Len(t, cfg.Weights[profile], 7, "profile %s", profile)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "askcode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storeUrl: http://weaviate.internal:8080
chatModel: gpt-4o-mini
topK: 5
autoConfirm: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://weaviate.internal:8080", cfg.StoreURL)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, 5, cfg.TopK)
	assert.False(t, cfg.AutoConfirm)
	// Untouched values keep their defaults.
	assert.Equal(t, "text-embedding-3-large", cfg.EmbedModel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ASKCODE_CHATMODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WEAVIATE_URL", "http://weaviate:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, "http://weaviate:8080", cfg.StoreURL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TopK:             15,
			MaxSnippetChars:  600,
			EmbedConcurrency: 5,
			MaxBudgetUSD:     100,
			Weights:          defaultWeights(),
		}
	}

	t.Run("accepts a complete config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects non-positive topK", func(t *testing.T) {
		c := valid()
		c.TopK = 0
		assert.Error(t, c.Validate())
	})

	t.Run("rejects negative budget", func(t *testing.T) {
		c := valid()
		c.MaxBudgetUSD = -1
		assert.Error(t, c.Validate())
	})

	t.Run("rejects weights without a default profile", func(t *testing.T) {
		c := valid()
		delete(c.Weights, "default")
		assert.Error(t, c.Validate())
	})
}
