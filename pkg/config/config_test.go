package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/source"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Empty(t, cfg.Sources)
	assert.Equal(t, source.DefaultWorkers, cfg.Workers)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, catalog.DefaultLimits, cfg.Limits())
	assert.Equal(t, source.DefaultMaxArchiveBytes, cfg.MaxArchiveBytes)
	assert.Equal(t, source.DefaultGitHubBaseURL, cfg.Remote.GitHubBaseURL)
	assert.Equal(t, filepath.Join(DirName, "compiled"), cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "always", cfg.Tracing.Sampler)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
sources:
  - ./skills
  - name: community
    location: github:Acme/Skills/catalog
    ref: v1.2.0
workers: 2
fetch_timeout: 30s
max_metadata_bytes: 1024
disabled_categories:
  - mobile/*
agent_dirs:
  - agents
remote:
  github_base_url: http://localhost:9999
log_format: JSON
tracing:
  enabled: true
  sampler: ratio
  ratio: 0.25
`)

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, []source.Spec{
		{Location: "./skills"},
		{Name: "community", Location: "github:Acme/Skills/catalog", Ref: "v1.2.0"},
	}, cfg.Sources)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, catalog.Limits{MaxBytes: 1024, MaxDepth: catalog.DefaultLimits.MaxDepth}, cfg.Limits())
	assert.Equal(t, []string{"mobile/*"}, cfg.DisabledCategories)
	assert.Equal(t, []string{"agents"}, cfg.AgentDirs)
	assert.Equal(t, "http://localhost:9999", cfg.Remote.GitHubBaseURL)
	assert.Equal(t, "json", cfg.LogFormat)

	tc := cfg.TelemetryConfig("1.0.0")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "collective", tc.ServiceName)
	assert.Equal(t, "1.0.0", tc.ServiceVersion)
	assert.Equal(t, "ratio", tc.SamplerType)
	assert.InDelta(t, 0.25, tc.SamplerRatio, 1e-9)

	assert.Len(t, cfg.LoaderOptions(), 5)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("COLLECTIVE_SOURCES", "./local, github:acme/skills")
	t.Setenv("COLLECTIVE_WORKERS", "8")
	t.Setenv("COLLECTIVE_REMOTE_GITHUB_BASE_URL", "http://mirror.internal")
	t.Setenv("COLLECTIVE_DISABLED_CATEGORIES", "mobile/*,desktop/*")

	v, err := New(writeConfig(t, "workers: 3\n"))
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, []source.Spec{{Location: "./local"}, {Location: "github:acme/skills"}}, cfg.Sources)
	assert.Equal(t, 8, cfg.Workers, "environment overrides the config file")
	assert.Equal(t, "http://mirror.internal", cfg.Remote.GitHubBaseURL)
	assert.Equal(t, []string{"mobile/*", "desktop/*"}, cfg.DisabledCategories)
}

func TestLoadExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	v := viper.New()
	SetDefaults(v)
	v.Set("cache_dir", "~/cache")
	v.Set("agent_dirs", []string{"~/agents", "local"})

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "cache"), cfg.CacheDir)
	assert.Equal(t, []string{filepath.Join(home, "agents"), "local"}, cfg.AgentDirs)
	assert.Len(t, cfg.LoaderOptions(), 6)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{name: "workers", key: "workers", value: 0, wantErr: "workers must be at least 1"},
		{name: "timeout", key: "fetch_timeout", value: "0s", wantErr: "fetch_timeout must be positive"},
		{name: "depth", key: "max_depth", value: -1, wantErr: "must be positive"},
		{name: "log format", key: "log_format", value: "xml", wantErr: "invalid log_format"},
		{name: "sampler", key: "tracing.sampler", value: "sometimes", wantErr: "invalid tracing.sampler"},
		{name: "source", key: "sources", value: []any{"github:acme"}, wantErr: "invalid source 0"},
		{
			name: "duplicate names",
			key:  "sources",
			value: []any{
				map[string]any{"name": "a", "location": "./one"},
				map[string]any{"name": "a", "location": "./two"},
			},
			wantErr: `share the name "a"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewMissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
