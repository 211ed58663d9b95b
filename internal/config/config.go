// Package config defines gridcarbon's on-disk configuration, loaded via
// internal/common.MakeConfig. Every item in spec.md §6's configuration
// table has a field here; defaults are set in UnmarshalYAML the way
// CEEMSAPIAppConfig does, so a sparse YAML file still produces a
// fully-populated Config. Default returns the same values without a file;
// MakeConfig reports a missing file as an error.
package config

import (
	"time"

	"github.com/pwkasay/gridcarbon/internal/common"
)

// nyisoPublishCadenceSeconds is how often NYISO republishes its fuel-mix
// CSV; polling faster than this never sees newer data.
const nyisoPublishCadenceSeconds = 300

// Config is gridcarbon's top-level configuration file shape.
type Config struct {
	// DatabaseURL is the sqlite3 DSN (file path, optionally with query
	// parameters). Never log it unredacted — see common.RedactDSN.
	DatabaseURL string `yaml:"database_url"`

	Ingest      IngestConfig      `yaml:"ingest"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Server      ServerConfig      `yaml:"server"`
}

// IngestConfig holds source polling cadence and upstream rate limits. The
// RateLimitDelay* fields are parsed but not read by the seed pipeline
// builders, which use pkg/ingest's DefaultRateLimitDelayFuel.
type IngestConfig struct {
	FuelMixPollIntervalSeconds int `yaml:"fuel_mix_poll_interval_seconds"`
	WeatherPollIntervalSeconds int `yaml:"weather_poll_interval_seconds"`

	RateLimitDelayFuelSeconds    float64 `yaml:"rate_limit_delay_fuel"`
	RateLimitDelayWeatherSeconds float64 `yaml:"rate_limit_delay_weather"`
}

// FuelMixPollInterval is IngestConfig.FuelMixPollIntervalSeconds as a
// time.Duration, rounded up to the nearest multiple of NYISO's publish
// cadence so a too-aggressive configured interval never polls faster than
// NYISO actually republishes.
func (c IngestConfig) FuelMixPollInterval() time.Duration {
	seconds := common.Round(int64(c.FuelMixPollIntervalSeconds), nyisoPublishCadenceSeconds, "right")
	return time.Duration(seconds) * time.Second
}

// WeatherPollInterval is IngestConfig.WeatherPollIntervalSeconds as a
// time.Duration.
func (c IngestConfig) WeatherPollInterval() time.Duration {
	return time.Duration(c.WeatherPollIntervalSeconds) * time.Second
}

// RateLimitDelayFuel is RateLimitDelayFuelSeconds as a time.Duration.
func (c IngestConfig) RateLimitDelayFuel() time.Duration {
	return time.Duration(c.RateLimitDelayFuelSeconds * float64(time.Second))
}

// RateLimitDelayWeather is RateLimitDelayWeatherSeconds as a time.Duration.
func (c IngestConfig) RateLimitDelayWeather() time.Duration {
	return time.Duration(c.RateLimitDelayWeatherSeconds * float64(time.Second))
}

// PipelineConfig controls the pkg/pipeline runtime's channel sizing and
// drain behavior, separately tunable for one-shot seed runs versus
// long-running continuous ingestion.
type PipelineConfig struct {
	ChannelCapacitySeed       int `yaml:"channel_capacity_seed"`
	ChannelCapacityContinuous int `yaml:"channel_capacity_continuous"`

	DrainTimeoutSeedSeconds       int `yaml:"drain_timeout_seed"`
	DrainTimeoutContinuousSeconds int `yaml:"drain_timeout_continuous"`
}

// DrainTimeoutSeed is DrainTimeoutSeedSeconds as a time.Duration.
func (c PipelineConfig) DrainTimeoutSeed() time.Duration {
	return time.Duration(c.DrainTimeoutSeedSeconds) * time.Second
}

// DrainTimeoutContinuous is DrainTimeoutContinuousSeconds as a time.Duration.
func (c PipelineConfig) DrainTimeoutContinuous() time.Duration {
	return time.Duration(c.DrainTimeoutContinuousSeconds) * time.Second
}

// PersistenceConfig controls the forecaster's short-horizon persistence
// blend: how many hours ahead a forecast keeps leaning on the current
// observed intensity before falling back fully to the baseline profile.
type PersistenceConfig struct {
	PersistenceHours int `yaml:"persistence_hours"`
}

// MetricsConfig controls the pipeline metrics sampler's tick interval.
type MetricsConfig struct {
	MetricsIntervalSeconds int `yaml:"metrics_interval_seconds"`
}

// MetricsInterval is MetricsIntervalSeconds as a time.Duration.
func (c MetricsConfig) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSeconds) * time.Second
}

// ServerConfig controls internal/adminhttp's listen address.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// UnmarshalYAML implements yaml.Unmarshaler, pre-populating every default
// from spec.md §6's configuration table before the file's own values are
// laid over them — the same pattern CEEMSAPIAppConfig uses.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = Config{
		DatabaseURL: "gridcarbon.db",
		Ingest: IngestConfig{
			FuelMixPollIntervalSeconds:   300,
			WeatherPollIntervalSeconds:   3600,
			RateLimitDelayFuelSeconds:    0.5,
			RateLimitDelayWeatherSeconds: 1.0,
		},
		Pipeline: PipelineConfig{
			ChannelCapacitySeed:           128,
			ChannelCapacityContinuous:     16,
			DrainTimeoutSeedSeconds:       60,
			DrainTimeoutContinuousSeconds: 15,
		},
		Persistence: PersistenceConfig{PersistenceHours: 6},
		Metrics:     MetricsConfig{MetricsIntervalSeconds: 10},
		Server:      ServerConfig{ListenAddress: ":9323"},
	}

	type plain Config

	return unmarshal((*plain)(c))
}

// Default returns a Config populated with spec.md §6's defaults, for
// callers (e.g. the CLI, when no config file is given) that need one
// without going through YAML unmarshaling.
func Default() *Config {
	c := &Config{}
	_ = c.UnmarshalYAML(func(_ interface{}) error { return nil })

	return c
}
