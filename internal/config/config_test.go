package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"CONVANALYZER_PROVIDER", "CONVANALYZER_MODEL", "CONVANALYZER_DB",
		"CONVANALYZER_LOG_LEVEL", "CONVANALYZER_REDIS_ADDR", "CONVANALYZER_LABELING_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJSONResolvesRelativePaths(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"basic_config": {"server_address": ":9000", "database": "sqlite3"},
		"databases": {"sqlite3": {"dsn": "data/labels.db"}},
		"analysis": {"provider": "openai", "input_path": "in.json", "output_path": "/tmp/out.json", "delay_ms": 250}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, filepath.Join(dir, "in.json"), cfg.Analysis.InputPath)
	assert.Equal(t, "/tmp/out.json", cfg.Analysis.OutputPath)
	assert.Equal(t, filepath.Join(dir, "data/labels.db"), cfg.Databases["sqlite3"].DSN)
	assert.Equal(t, 250, cfg.Analysis.DelayMillis)
	// untouched sections keep defaults
	assert.Equal(t, 3, cfg.Analysis.MaxRetries)
	assert.Equal(t, "bf17272dc3f0", cfg.Preprocess.BotSenderID)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
analysis:
  provider: claude
  model: claude-opus
providers:
  claude:
    base_url: https://example.invalid
    model: claude-sonnet
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	p, ok := cfg.Provider("claude")
	require.True(t, ok)
	assert.Equal(t, "claude-opus", p.Model)
	assert.Equal(t, "https://example.invalid", p.BaseURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProvider, cfg.Analysis.Provider)
	assert.Equal(t, 100, cfg.Analysis.DelayMillis)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("api keys land on their providers", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := Default()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, "oa-key", cfg.Providers["openai"].APIKey)
		assert.Equal(t, "ant-key", cfg.Providers["claude"].APIKey)
		assert.Empty(t, cfg.Providers["gemini"].APIKey)
	})

	t.Run("provider and model", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONVANALYZER_PROVIDER", "gemini")
		t.Setenv("CONVANALYZER_MODEL", "gemini-pro")

		cfg := Default()
		require.NoError(t, cfg.applyEnvOverrides())

		p, ok := cfg.Provider("gemini")
		require.True(t, ok)
		assert.Equal(t, "gemini-pro", p.Model)
		other, _ := cfg.Provider("openai")
		assert.Equal(t, "gpt-5", other.Model)
	})

	t.Run("redis address enables cache", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONVANALYZER_REDIS_ADDR", "cache.local:6380")

		cfg := Default()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "cache.local", cfg.Redis.Host)
		assert.Equal(t, 6380, cfg.Redis.Port)
	})

	t.Run("bad redis address", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONVANALYZER_REDIS_ADDR", "cache.local")
		cfg := Default()
		assert.Error(t, cfg.applyEnvOverrides())
	})
}

func TestSecretsFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, DefaultSecretsPath, "OPENAI_API_KEY=from-file\nGEMINI_API_KEY=gem-file\n")
	path := writeFile(t, dir, "config.json", `{}`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	// GEMINI_API_KEY is set to "" by clearEnv; godotenv keeps existing variables.
	os.Unsetenv("GEMINI_API_KEY")
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "gem-file", cfg.Providers["gemini"].APIKey)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Analysis.DelayMillis = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Analysis.Provider = " "
	assert.Error(t, cfg.Validate())
}
