// Package config loads the process-level tuning knobs for a stratum
// deployment: session table size, epoch tick scheduling, and
// metrics/logging toggles.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the typed configuration a kvstore.Context is built from.
// SplitThreshold documents the data model's fixed 15/8 capacity rather
// than controlling it; the border/interior split point is a compile-time
// constant of the layout (border.go's splitAt), not something a deployed
// process can safely vary; nothing outside this package reads it.
type Config struct {
	MaxSessions int `mapstructure:"max_sessions"`

	EpochTickInterval   time.Duration `mapstructure:"epoch_tick_interval"`
	EpochTickBackoffMax time.Duration `mapstructure:"epoch_tick_backoff_max"`

	SplitThreshold int `mapstructure:"split_threshold"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	LogLevel       string `mapstructure:"log_level"`
}

// Default returns the configuration a freshly started process should
// use absent any file or environment override.
func Default() Config {
	return Config{
		MaxSessions:         256,
		EpochTickInterval:   40 * time.Millisecond,
		EpochTickBackoffMax: 2 * time.Second,
		SplitThreshold:      8,
		MetricsEnabled:      true,
		LogLevel:            "info",
	}
}

// Load reads configuration from path (if non-empty), environment
// variables prefixed STRATUM_, and the package defaults, resolved by
// viper in order of decreasing precedence: env overrides file, and file
// overrides the defaults (an explicit Set would override env).
func Load(path string) (Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("max_sessions", d.MaxSessions)
	v.SetDefault("epoch_tick_interval", d.EpochTickInterval)
	v.SetDefault("epoch_tick_backoff_max", d.EpochTickBackoffMax)
	v.SetDefault("split_threshold", d.SplitThreshold)
	v.SetDefault("metrics_enabled", d.MetricsEnabled)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("STRATUM")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
