package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9820, cfg.Server.Port)
	assert.Equal(t, 80, cfg.Scoring.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Undo.Window.Duration())
	assert.False(t, cfg.Intake.Enabled)
	assert.False(t, cfg.LLM.Enabled)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9820, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 7000
scoring:
  threshold: 60
undo:
  window: 10m
store:
  base_url: http://records.internal:9000
  api_key: sk-records-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Scoring.Threshold)
	assert.Equal(t, 10*time.Minute, cfg.Undo.Window.Duration())
	assert.Equal(t, "http://records.internal:9000", cfg.Store.BaseURL)
	assert.Equal(t, "sk-records-1", cfg.Store.APIKey.Value())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 7000\n")
	t.Setenv("INTAKED_SERVER_PORT", "7100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 99999\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestLoad_NegativeDurationRejected(t *testing.T) {
	path := writeConfig(t, "undo:\n  window: -5m\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_LLMRequiresKey(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.LLM.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	cfg.LLM.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret("sk-very-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-very-secret", s.Value())

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "very-secret")

	assert.Equal(t, "", Secret("").String())
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-1s")))
	require.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := Duration(time.Minute).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m0s", string(text))
}
