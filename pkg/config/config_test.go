package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "settings.yaml"), filepath.Join(dir, "secret"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8*time.Second, cfg.Search.Timeout())
}

func TestLoad_OverridesAndSecrets(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "settings.yaml", `
runtime:
  locale: en-US
  max_iterations: 2
search:
  provider: duckduckgo
  timeout_seconds: 2.5
  max_notes: 4
`)
	secret := writeFile(t, dir, "secret", `# keys
OPENROUTER_API_KEY=or-key
Tavily_Key=tv-key
TELEGRAM_BOT_TOKEN=tg-token
TELEGRAM_CHAT_ID=42
LANGSMITH_PROJECT=deep
`)

	cfg, err := Load(settings, secret)
	require.NoError(t, err)
	assert.Equal(t, "en-US", cfg.Runtime.Locale)
	assert.Equal(t, 2, cfg.Runtime.MaxIterations)
	assert.True(t, cfg.Runtime.HumanReview, "omitted keys keep defaults")
	assert.Equal(t, 3, cfg.Runtime.MaxReviewAttempts)
	assert.Equal(t, "duckduckgo", cfg.Search.Provider)
	assert.Equal(t, 2500*time.Millisecond, cfg.Search.Timeout())
	require.NotNil(t, cfg.Search.MaxNotes)
	assert.Equal(t, 4, *cfg.Search.MaxNotes)

	assert.Equal(t, "or-key", cfg.API.OpenRouterKey)
	assert.Equal(t, "tv-key", cfg.API.TavilyKey)
	assert.Equal(t, "tg-token", cfg.Gateways.Telegram.Token)
	assert.Equal(t, "42", cfg.Gateways.Telegram.ChatID)
	assert.Equal(t, "deep", cfg.Observability.LangsmithProject)

	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.RequirePlanner())
	assert.NoError(t, cfg.RequireSearch())
	assert.NoError(t, cfg.RequireTelegram())
	assert.Empty(t, cfg.SearchCredential())
}

func TestLoad_BadSettings(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "settings.yaml", "- just\n- a list\n")
	_, err := Load(settings, "")
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, settings, cfgErr.Field)
}

func TestValidate(t *testing.T) {
	zero := 0
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"locale", func(c *Config) { c.Runtime.Locale = " " }, "runtime.locale"},
		{"iterations", func(c *Config) { c.Runtime.MaxIterations = 0 }, "runtime.max_iterations"},
		{"attempts", func(c *Config) { c.Runtime.MaxReviewAttempts = 0 }, "runtime.max_review_attempts"},
		{"temperature", func(c *Config) { c.Models.Temperature = 3 }, "models.temperature"},
		{"queries", func(c *Config) { c.Search.MaxQueries = 0 }, "search.max_queries"},
		{"timeout", func(c *Config) { c.Search.TimeoutSeconds = 0 }, "search.timeout_seconds"},
		{"notes", func(c *Config) { c.Search.MaxNotes = &zero }, "search.max_notes"},
		{"provider", func(c *Config) { c.Search.Provider = "bing" }, "search.provider"},
		{"denied provider", func(c *Config) { c.Search.DenyProviders = []string{"Tavily"} }, "search.deny_providers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			err := cfg.Validate()
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRequire_MissingKeys(t *testing.T) {
	cfg := Default()

	err := cfg.RequirePlanner()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenRouter")

	err = cfg.RequireSearch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tavily")

	cfg.Gateways.Telegram.Token = "t"
	err = cfg.RequireTelegram()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat_id")
}
