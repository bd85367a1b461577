// Package config provides configuration loading and validation for rbarena.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

// Sentinel validation errors.
var (
	ErrInvalidCapacity    = errors.New("arena initial capacity must be positive")
	ErrInvalidMaxBytes    = errors.New("invalid arena max bytes")
	ErrInvalidThreshold   = errors.New("hibernation threshold must not be negative")
	ErrInvalidLogFormat   = errors.New("log format must be text or json")
	ErrInvalidSampleRatio = errors.New("trace sample ratio must be within [0, 1]")
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "RBARENA"

// Config holds all configuration for rbarena.
type Config struct {
	Arena         ArenaConfig         `mapstructure:"arena"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Bench         BenchConfig         `mapstructure:"bench"`
}

// ArenaConfig sizes the arena owned by each tree.
type ArenaConfig struct {
	InitialCapacity int `mapstructure:"initial_capacity"`
	// MaxBytes is a human-readable size such as "64MiB". "0" means unbounded.
	MaxBytes             string `mapstructure:"max_bytes"`
	HibernationThreshold int    `mapstructure:"hibernation_threshold"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds telemetry export settings.
type ObservabilityConfig struct {
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
}

// BenchConfig holds the workload run by the bench command.
type BenchConfig struct {
	Seed        int64 `mapstructure:"seed"`
	Keys        int   `mapstructure:"keys"`
	KeyMin      int32 `mapstructure:"key_min"`
	KeyMax      int32 `mapstructure:"key_max"`
	DeleteEvery int   `mapstructure:"delete_every"`
	VerifyEvery int   `mapstructure:"verify_every"`
	SampleEvery int   `mapstructure:"sample_every"`
}

// LoadConfig loads configuration from file and environment variables.
// With an empty configPath, rbarena.yaml is looked up in ".", "./config" and
// "/etc/rbarena", and a missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("rbarena")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/rbarena")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Arena defaults.
	viperCfg.SetDefault("arena.initial_capacity", DefaultArenaInitialCapacity)
	viperCfg.SetDefault("arena.max_bytes", DefaultArenaMaxBytes)
	viperCfg.SetDefault("arena.hibernation_threshold", DefaultArenaHibernationThreshold)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	// Observability defaults.
	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
	viperCfg.SetDefault("observability.debug_trace", false)
	viperCfg.SetDefault("observability.metrics_addr", "")

	// Bench defaults.
	viperCfg.SetDefault("bench.seed", DefaultBenchSeed)
	viperCfg.SetDefault("bench.keys", DefaultBenchKeys)
	viperCfg.SetDefault("bench.key_min", DefaultBenchKeyMin)
	viperCfg.SetDefault("bench.key_max", DefaultBenchKeyMax)
	viperCfg.SetDefault("bench.delete_every", DefaultBenchDeleteEvery)
	viperCfg.SetDefault("bench.verify_every", DefaultBenchVerifyEvery)
	viperCfg.SetDefault("bench.sample_every", DefaultBenchSampleEvery)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Arena.InitialCapacity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, config.Arena.InitialCapacity)
	}

	_, err := config.Arena.MaxBytesValue()
	if err != nil {
		return err
	}

	if config.Arena.HibernationThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, config.Arena.HibernationThreshold)
	}

	_, err = observability.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if config.Logging.Format != LogFormatText && config.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if ratio := config.Observability.SampleRatio; ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, ratio)
	}

	err = config.Bench.Workload().Validate()
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}

	return nil
}

// MaxBytesValue parses MaxBytes. Zero means unbounded.
func (c ArenaConfig) MaxBytesValue() (uint64, error) {
	if c.MaxBytes == "" {
		return 0, nil
	}

	limit, err := humanize.ParseBytes(c.MaxBytes)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidMaxBytes, c.MaxBytes, err)
	}

	if limit > 0 && limit < arena.RecordBytes {
		return 0, fmt.Errorf("%w: %q is smaller than one record", ErrInvalidMaxBytes, c.MaxBytes)
	}

	return limit, nil
}

// Options converts the section into arena options. The config must have
// passed validation.
func (c ArenaConfig) Options() []arena.Option {
	limit, err := c.MaxBytesValue()
	if err != nil {
		limit = 0
	}

	return []arena.Option{
		arena.WithInitialCapacity(c.InitialCapacity),
		arena.WithMaxBytes(limit),
		arena.WithHibernationThreshold(c.HibernationThreshold),
	}
}

// SlogLevel returns the configured level, defaulting to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	level, err := observability.ParseLevel(c.Level)
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// Telemetry builds the observability configuration for the given binary
// version and mode.
func (c *Config) Telemetry(version string, mode observability.AppMode) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Mode = mode
	cfg.Environment = c.Observability.Environment
	cfg.OTLPEndpoint = c.Observability.OTLPEndpoint
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Observability.OTLPHeaders)
	cfg.OTLPInsecure = c.Observability.OTLPInsecure
	cfg.SampleRatio = c.Observability.SampleRatio
	cfg.DebugTrace = c.Observability.DebugTrace
	cfg.Prometheus = c.Observability.MetricsAddr != ""
	cfg.LogLevel = c.Logging.SlogLevel()
	cfg.LogJSON = c.Logging.Format == LogFormatJSON

	return cfg
}

// Workload converts the bench section into a workload configuration.
func (c BenchConfig) Workload() workload.Config {
	return workload.Config{
		Seed:        c.Seed,
		Keys:        c.Keys,
		KeyMin:      c.KeyMin,
		KeyMax:      c.KeyMax,
		DeleteEvery: c.DeleteEvery,
		VerifyEvery: c.VerifyEvery,
		SampleEvery: c.SampleEvery,
	}
}
