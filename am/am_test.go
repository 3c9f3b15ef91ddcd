package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendQueue, cfg.Pipeline.Backend)
	assert.Equal(t, FormatSimple, cfg.Output.Format)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.QueueTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.RestartSettle())
	assert.Equal(t, "x", cfg.Validation.TargetVar)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty endpoint", func(c *Config) { c.Source.Endpoint = "" }, "source.endpoint"},
		{"unknown backend", func(c *Config) { c.Pipeline.Backend = "ring" }, "pipeline.backend"},
		{"pipe without capacity", func(c *Config) {
			c.Pipeline.Backend = BackendPipe
			c.Pipeline.PipeCapacity = 0
		}, "pipe_capacity"},
		{"serial pipe", func(c *Config) {
			c.Pipeline.Backend = BackendPipe
			c.Pipeline.Serial = true
		}, "serial"},
		{"zero queue timeout", func(c *Config) { c.Pipeline.QueueTimeoutSeconds = 0 }, "queue_timeout_seconds"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"internal endpoint missing", func(c *Config) { c.Source.UseInternalEndpoint = true }, "internal_endpoint"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestQueryEndpoint(t *testing.T) {
	s := SourceConfig{Endpoint: "http://ext/sparql", InternalEndpoint: "http://int/sparql"}
	assert.Equal(t, "http://ext/sparql", s.QueryEndpoint())

	s.UseInternalEndpoint = true
	assert.Equal(t, "http://int/sparql", s.QueryEndpoint())
}

func TestLoadFromFileMergesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := `
[pipeline]
backend = "pipe"
pipe_capacity = 8

[output]
format = "stats"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, BackendPipe, cfg.Pipeline.Backend)
	assert.Equal(t, 8, cfg.Pipeline.PipeCapacity)
	assert.Equal(t, FormatStats, cfg.Output.Format)
	// untouched keys keep their defaults
	assert.Equal(t, 30, cfg.Pipeline.QueueTimeoutSeconds)
	assert.Equal(t, "http://localhost:8890/sparql", cfg.Source.Endpoint)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Validation.ShapeVars = map[string]string{"x": "ActorShape"}

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[pipeline]"))

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Pipeline, back.Pipeline)
	assert.Equal(t, "ActorShape", back.Validation.ShapeVars["x"])
}

func TestWriteFileReadableByLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "am.toml")
	cfg := Defaults()
	cfg.Server.Port = 9191

	require.NoError(t, cfg.WriteFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, loaded.Server.Port)
}
