package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"model": {"provider": "ollama", "name": "llama3"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750, cfg.Budget.PersonaMaxTokens)
	assert.Equal(t, 500, cfg.Budget.HumanMaxTokens)
	assert.InDelta(t, 0.95, cfg.Budget.WarnFrac, 1e-9)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaHost)
	assert.Equal(t, "localhost:6334", cfg.QdrantAddr)
}

func TestLoad_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_OLLAMA_HOST", "http://example:11434")
	path := writeConfig(t, `{"model": {"provider": "ollama", "name": "llama3"}, "ollama_host": "${TEST_OLLAMA_HOST}"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example:11434", cfg.OllamaHost)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://override:11434")
	path := writeConfig(t, `{"model": {"provider": "ollama", "name": "llama3"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:11434", cfg.OllamaHost)
}

func TestLoad_RejectsMissingModelName(t *testing.T) {
	path := writeConfig(t, `{"model": {"provider": "ollama"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `{"model": {"provider": "bogus", "name": "x"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsBadFracOrdering(t *testing.T) {
	path := writeConfig(t, `{"model": {"provider": "ollama", "name": "llama3"}, "budget": {"warn_frac": 0.9, "flush_frac": 0.5, "truncation_frac": 0.1, "last_n_messages": 3, "force_write_every": 7, "persona_max_tokens": 750, "human_max_tokens": 500}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestGet_AfterLoad(t *testing.T) {
	path := writeConfig(t, `{"model": {"provider": "ollama", "name": "llama3"}}`)
	_, err := Load(path)
	require.NoError(t, err)

	cfg, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.Model.Name)
}

func TestGetAPIKey_OllamaNeedsNoSecret(t *testing.T) {
	key, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestGetAPIKey_FallsBackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	key, err := GetAPIKey(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-key", key)
}
