package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"askdoc/internal/config"
)

func TestLoadConfig(t *testing.T) {
	// Set env var directly to test envconfig logic
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	// Create a temp .env file
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_GeminiKey(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
}

func TestLoadConfig_Toggles(t *testing.T) {
	os.Setenv("ENABLE_INGEST_WORKER", "true")
	os.Setenv("SEARCH_TOP_K", "8")
	os.Setenv("LLM_WEIGHT", "0.3")
	defer os.Unsetenv("ENABLE_INGEST_WORKER")
	defer os.Unsetenv("SEARCH_TOP_K")
	defer os.Unsetenv("LLM_WEIGHT")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.True(t, cfg.EnableIngestWorker)
	assert.Equal(t, 8, cfg.SearchTopK)
	assert.Equal(t, 0.3, cfg.LLMWeight)
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	// Overlap larger than the chunk size can never terminate
	os.Setenv("CHUNK_OVERLAP", "2000")
	defer os.Unsetenv("CHUNK_OVERLAP")

	cfg, err := config.Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}
