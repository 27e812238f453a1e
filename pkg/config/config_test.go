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
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
)

// setupTestHome points HOME at a temp dir and returns the ragstore config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "ragstore")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, vectorstore.ProviderMemory, cfg.VectorStore.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Sampling)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "ragstore", cfg.Telemetry.ServiceName)
	assert.Equal(t, 15*time.Second, cfg.Telemetry.ExportInterval.Duration())
}

func TestLoadWithFile_YAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
vectorstore:
  provider: chroma
  chroma:
    host: http://chroma.internal:8000
    collection: handbook
    top_k: 8
    timeout: 10s
    requests_per_second: 20
logging:
  level: debug
  format: console
  sampling: false
telemetry:
  enabled: true
  endpoint: localhost:4318
  protocol: http/protobuf
  sample_rate: 0.25
  auth_token: s3cr3t
  export_interval: 30s
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "chroma", cfg.VectorStore.Provider)
	assert.Equal(t, "http://chroma.internal:8000", cfg.VectorStore.Chroma.Host)
	assert.Equal(t, "handbook", cfg.VectorStore.Chroma.Collection)
	assert.Equal(t, 8, cfg.VectorStore.Chroma.TopK)
	assert.Equal(t, 10*time.Second, cfg.VectorStore.Chroma.Timeout)
	assert.Equal(t, 20.0, cfg.VectorStore.Chroma.RequestsPerSecond)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Logging.Sampling)

	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "http/protobuf", cfg.Telemetry.Protocol)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
	assert.Equal(t, "s3cr3t", cfg.Telemetry.AuthToken.Value())
	assert.Equal(t, 30*time.Second, cfg.Telemetry.ExportInterval.Duration())
	// Unset keys keep their defaults.
	assert.Equal(t, "ragstore", cfg.Telemetry.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.ShutdownTimeout.Duration())
}

func TestLoadWithFile_EnvOverrides(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
vectorstore:
  provider: chroma
  chroma:
    collection: handbook
`, 0600)

	t.Setenv("RAGSTORE_VECTORSTORE_CHROMA__TOP_K", "12")
	t.Setenv("RAGSTORE_VECTORSTORE_CHROMA__HOST", "http://10.0.0.5:8000")
	t.Setenv("RAGSTORE_LOGGING_LEVEL", "warn")
	t.Setenv("RAGSTORE_TELEMETRY_SERVICE_NAME", "ragstore-test")
	t.Setenv("RAGSTORE_SERVER_PORT", "8088")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.VectorStore.Chroma.TopK)
	assert.Equal(t, "http://10.0.0.5:8000", cfg.VectorStore.Chroma.Host)
	assert.Equal(t, "handbook", cfg.VectorStore.Chroma.Collection)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "ragstore-test", cfg.Telemetry.ServiceName)
	assert.Equal(t, "localhost:8088", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestLoadWithFile_Rejections(t *testing.T) {
	dir := setupTestHome(t)

	t.Run("outside allowed directories", func(t *testing.T) {
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be in ~/.config/ragstore/")
	})

	t.Run("traversal out of config dir", func(t *testing.T) {
		_, err := LoadWithFile(filepath.Join(dir, "..", "..", "config.yaml"))
		require.Error(t, err)
	})

	t.Run("world readable", func(t *testing.T) {
		path := writeConfig(t, dir, "logging:\n  level: info\n", 0644)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("invalid provider", func(t *testing.T) {
		path := writeConfig(t, dir, "vectorstore:\n  provider: pinecone\n", 0600)
		_, err := LoadWithFile(path)
		assert.ErrorIs(t, err, vectorstore.ErrUnsupportedProvider)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, dir, "vectorstore: [\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
	})
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"RAGSTORE_VECTORSTORE_PROVIDER", "vectorstore.provider"},
		{"RAGSTORE_VECTORSTORE_CHROMA__HOST", "vectorstore.chroma.host"},
		{"RAGSTORE_VECTORSTORE_QDRANT__VECTOR_SIZE", "vectorstore.qdrant.vector_size"},
		{"RAGSTORE_TELEMETRY_SAMPLE_RATE", "telemetry.sample_rate"},
		{"RAGSTORE_LOGGING", "logging"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Format = "xml"
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 2
	cfg.Server.Port = 70000
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging: format")
	assert.Contains(t, err.Error(), "telemetry: sample_rate")
	assert.Contains(t, err.Error(), "server: port")
}

func TestLoggingConfig_ParseLevel(t *testing.T) {
	for level, want := range map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"trace": zapcore.Level(-2),
		"DEBUG": zapcore.DebugLevel,
		"error": zapcore.ErrorLevel,
	} {
		got, err := LoggingConfig{Level: level}.ParseLevel()
		require.NoError(t, err, level)
		assert.Equal(t, want, got, level)
	}

	_, err := LoggingConfig{Level: "loud"}.ParseLevel()
	assert.Error(t, err)
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "hunter2")
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())

	out, err := json.Marshal(struct {
		Token Secret `json:"token"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"[REDACTED]"}`, string(out))

	var back Secret
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &back))
	assert.Equal(t, "abc", back.Value())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalText(nil))
	assert.Zero(t, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := Duration(2 * time.Second).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2s", string(text))
}
