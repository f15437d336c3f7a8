package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ucrd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "ucrd", cfg.Observability.ServiceName)
	assert.Equal(t, "grpc", cfg.Observability.Protocol)
	assert.False(t, cfg.Observability.EnableTelemetry)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "gpt-4o-mini", cfg.Reasoning.Model)
	assert.Equal(t, 3, cfg.Reasoning.MaxRetries)
	assert.False(t, cfg.Reasoning.APIKey.IsSet())
	assert.Equal(t, 45*time.Second, cfg.Council.CallTimeout.Duration())
	assert.Equal(t, 60*time.Second, cfg.Council.SynthesisTimeout.Duration())
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "ucr.executions", cfg.NATS.SubjectPrefix)
	assert.Empty(t, cfg.Store.Root)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  http_host: 127.0.0.1
  http_port: 9191
  shutdown_timeout: 3s
logging:
  level: debug
  format: console
reasoning:
  base_url: http://localhost:11434/v1
  model: llama3
  api_key: sk-file
council:
  call_timeout: 5s
nats:
  enabled: true
  url: nats://broker:4222
store:
  root: /var/lib/ucr
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "llama3", cfg.Reasoning.Model)
	assert.Equal(t, "sk-file", cfg.Reasoning.APIKey.Value())
	assert.Equal(t, 5*time.Second, cfg.Council.CallTimeout.Duration())
	assert.Equal(t, 60*time.Second, cfg.Council.SynthesisTimeout.Duration())
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "/var/lib/ucr", cfg.Store.Root)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9191\n", 0o600)

	t.Setenv("UCR_SERVER_HTTP_PORT", "7070")
	t.Setenv("UCR_REASONING_API_KEY", "sk-env")
	t.Setenv("UCR_COUNCIL_SYNTHESIS_TIMEOUT", "90s")
	t.Setenv("UCR_NATS_SUBJECT_PREFIX", "audit.runs")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-env", cfg.Reasoning.APIKey.Value())
	assert.Equal(t, 90*time.Second, cfg.Council.SynthesisTimeout.Duration())
	assert.Equal(t, "audit.runs", cfg.NATS.SubjectPrefix)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9191\n", 0o644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	path := writeConfig(t, "# "+string(make([]byte, maxConfigFileSize))+"\n", 0o600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o700))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"port out of range", map[string]string{"UCR_SERVER_HTTP_PORT": "70000"}, "invalid server port"},
		{"negative duration", map[string]string{"UCR_COUNCIL_CALL_TIMEOUT": "-5s"}, "failed to unmarshal config"},
		{"bad protocol", map[string]string{"UCR_OBSERVABILITY_PROTOCOL": "udp"}, "observability protocol"},
		{"bad format", map[string]string{"UCR_LOGGING_FORMAT": "xml"}, "logging format"},
		{"hot temperature", map[string]string{"UCR_REASONING_TEMPERATURE": "3.5"}, "temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Observability.EnableTelemetry = true
	cfg.Observability.ServiceName = ""
	assert.ErrorContains(t, cfg.Validate(), "service name required")

	cfg = Default()
	cfg.NATS.Enabled = true
	cfg.NATS.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "nats url required")

	cfg = Default()
	cfg.Reasoning.MaxRetries = -1
	assert.ErrorContains(t, cfg.Validate(), "max_retries")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"UCR_SERVER_HTTP_PORT":       "server.http_port",
		"UCR_OBSERVABILITY_ENDPOINT": "observability.endpoint",
		"UCR_REASONING_MAX_TOKENS":   "reasoning.max_tokens",
		"UCR_COUNCIL_CATALOG_PATH":   "council.catalog_path",
		"UCR_STORE_ROOT":             "store.root",
		"UCR_STANDALONE":             "standalone",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-live-123", s.Value())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	var back Secret
	require.NoError(t, json.Unmarshal([]byte(`"sk-raw"`), &back))
	assert.Equal(t, "sk-raw", back.Value())

	out, err := yaml.Marshal(map[string]Secret{"key": s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-live-123")
	assert.Contains(t, string(out), "[REDACTED]")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
	assert.Error(t, d.UnmarshalText([]byte("-1s")))

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
