// Package config loads collective settings from config files, environment
// variables and bound command-line flags.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/source"
	"github.com/claude-collective/collective/pkg/telemetry"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. COLLECTIVE_WORKERS
	EnvPrefix = "COLLECTIVE"
	// DirName is the per-project and per-user configuration directory
	DirName = ".collective"
)

// Config is the complete collective configuration
type Config struct {
	Sources            []source.Spec `mapstructure:"sources"`
	CacheDir           string        `mapstructure:"cache_dir"`
	Workers            int           `mapstructure:"workers"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	MaxMetadataBytes   int           `mapstructure:"max_metadata_bytes"`
	MaxDepth           int           `mapstructure:"max_depth"`
	MaxArchiveBytes    int64         `mapstructure:"max_archive_bytes"`
	Remote             RemoteConfig  `mapstructure:"remote"`
	DisabledCategories []string      `mapstructure:"disabled_categories"`
	AgentDirs          []string      `mapstructure:"agent_dirs"`
	OutputDir          string        `mapstructure:"output_dir"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	Tracing            TracingConfig `mapstructure:"tracing"`
}

// RemoteConfig configures remote source fetching
type RemoteConfig struct {
	GitHubBaseURL string `mapstructure:"github_base_url"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Sampler string  `mapstructure:"sampler"`
	Ratio   float64 `mapstructure:"ratio"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sources", []string{})
	v.SetDefault("cache_dir", "")
	v.SetDefault("workers", source.DefaultWorkers)
	v.SetDefault("fetch_timeout", source.DefaultFetchTimeout)
	v.SetDefault("max_metadata_bytes", catalog.DefaultLimits.MaxBytes)
	v.SetDefault("max_depth", catalog.DefaultLimits.MaxDepth)
	v.SetDefault("max_archive_bytes", int64(source.DefaultMaxArchiveBytes))
	v.SetDefault("remote.github_base_url", source.DefaultGitHubBaseURL)
	v.SetDefault("disabled_categories", []string{})
	v.SetDefault("agent_dirs", []string{})
	v.SetDefault("output_dir", filepath.Join(DirName, "compiled"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler", "always")
	v.SetDefault("tracing.ratio", 1.0)
}

// New returns a viper instance with defaults, environment binding and the
// config search path set up. When file is non-empty it is used instead of
// searching ./.collective and $HOME/.collective for config.yaml.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DirName)
	v.AddConfigPath(filepath.Join("$HOME", DirName))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}
	return v, nil
}

// Load decodes the settings held by v and validates them
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			sourceSpecsHook,
			sourceSpecHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config decoder")
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var specType = reflect.TypeOf(source.Spec{})

// sourceSpecHook lets a source be written as a bare location string
func sourceSpecHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() != reflect.String || t != specType {
		return data, nil
	}
	return source.Spec{Location: data.(string)}, nil
}

// sourceSpecsHook splits a comma separated source list, the form sources
// take when set through COLLECTIVE_SOURCES
func sourceSpecsHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Slice || t.Elem() != specType {
		return data, nil
	}
	var specs []source.Spec
	for _, part := range strings.Split(data.(string), ",") {
		if part = strings.TrimSpace(part); part != "" {
			specs = append(specs, source.Spec{Location: part})
		}
	}
	return specs, nil
}

func (c *Config) normalize() error {
	var err error
	if c.CacheDir, err = expandHome(c.CacheDir); err != nil {
		return err
	}
	if c.OutputDir, err = expandHome(c.OutputDir); err != nil {
		return err
	}
	for i, dir := range c.AgentDirs {
		if c.AgentDirs[i], err = expandHome(dir); err != nil {
			return err
		}
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
	c.Tracing.Sampler = strings.ToLower(c.Tracing.Sampler)
	return nil
}

// Validate checks ranges and that every configured source parses
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.FetchTimeout <= 0 {
		return errors.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.MaxMetadataBytes <= 0 || c.MaxDepth <= 0 || c.MaxArchiveBytes <= 0 {
		return errors.New("max_metadata_bytes, max_depth and max_archive_bytes must be positive")
	}
	switch c.LogFormat {
	case "text", "fmt", "json":
	default:
		return errors.Errorf("invalid log_format %q (expected text or json)", c.LogFormat)
	}
	switch c.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		return errors.Errorf("invalid tracing.sampler %q (expected always, never or ratio)", c.Tracing.Sampler)
	}

	names := make(map[string]int, len(c.Sources))
	for i, spec := range c.Sources {
		if _, err := source.ParseLocator(spec.Location, spec.Ref); err != nil {
			return errors.Wrapf(err, "invalid source %d", i)
		}
		if spec.Name == "" {
			continue
		}
		if j, ok := names[spec.Name]; ok {
			return errors.Errorf("sources %d and %d share the name %q", j, i, spec.Name)
		}
		names[spec.Name] = i
	}
	return nil
}

// Limits returns the metadata parsing limits
func (c *Config) Limits() catalog.Limits {
	return catalog.Limits{MaxBytes: c.MaxMetadataBytes, MaxDepth: c.MaxDepth}
}

// LoaderOptions translates the configuration into source loader options
func (c *Config) LoaderOptions() []source.Option {
	opts := []source.Option{
		source.WithLimits(c.Limits()),
		source.WithWorkers(c.Workers),
		source.WithFetchTimeout(c.FetchTimeout),
		source.WithMaxArchiveBytes(c.MaxArchiveBytes),
		source.WithGitHubBaseURL(c.Remote.GitHubBaseURL),
	}
	if c.CacheDir != "" {
		opts = append(opts, source.WithCacheDir(c.CacheDir))
	}
	return opts
}

// TelemetryConfig returns the tracer settings for the given build version
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    "collective",
		ServiceVersion: version,
		SamplerType:    c.Tracing.Sampler,
		SamplerRatio:   c.Tracing.Ratio,
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
