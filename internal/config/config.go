// Package config loads rotator configuration from YAML and environment
// variables via viper (spec §1: config loading is in scope, hot reload is
// not — this package never calls viper.WatchConfig).
//
// Grounded on olla's internal/config/config.go (viper setup, env prefix,
// config-file search paths), trimmed of its HTTP-server/discovery/TLS/
// telemetry sections and its fsnotify-driven OnConfigChange, and given new
// sections matching the rotator's own components.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPoolMaxSize = 10000

	DefaultStrategyName = "round-robin"

	DefaultBreakerFailureThreshold = 5
	DefaultBreakerWindow           = 60 * time.Second
	DefaultBreakerCooldown         = 30 * time.Second

	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseDelay   = 100 * time.Millisecond
	DefaultRetryMultiplier  = 2.0
	DefaultRetryTimeout     = 30 * time.Second

	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthFailureThresh = 3
	DefaultHealthConcurrency   = 8
)

// DefaultConfig returns a configuration with sensible defaults, usable
// without a config file present.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxSize: DefaultPoolMaxSize,
		},
		Strategy: StrategyConfig{
			Name:                 DefaultStrategyName,
			EMAAlpha:             0.2,
			ExplorationThreshold: 5,
			SessionTTLSeconds:    300,
			GeoFallbackEnabled:   false,
		},
		Breaker: BreakerConfig{
			FailureThreshold: DefaultBreakerFailureThreshold,
			WindowDuration:   DefaultBreakerWindow,
			CooldownDuration: DefaultBreakerCooldown,
		},
		Retry: RetryConfig{
			MaxAttempts:        DefaultRetryMaxAttempts,
			BackoffStrategy:    "exponential",
			BaseDelay:          DefaultRetryBaseDelay,
			Multiplier:         DefaultRetryMultiplier,
			Jitter:             true,
			RetryStatusCodes:   []int{429, 502, 503, 504},
			RetryNonIdempotent: false,
			Timeout:            DefaultRetryTimeout,
		},
		Health: HealthConfig{
			CheckInterval:    DefaultHealthCheckInterval,
			FailureThreshold: DefaultHealthFailureThresh,
			Concurrency:      DefaultHealthConcurrency,
			CheckTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Theme:  "default",
			MaxSize: 100,
			MaxBackups: 5,
			MaxAge: 30,
		},
	}
}

// Load reads configuration from ./config.yaml (or $PROXYROTATOR_CONFIG_FILE)
// and PROXYROTATOR_-prefixed environment variables, layered over
// DefaultConfig. A missing config file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("PROXYROTATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// AutomaticEnv only reaches keys viper already knows, and Unmarshal
	// only sees known keys, so bind an env var for every Config field.
	cfgType := reflect.TypeOf(*cfg)
	for i := 0; i < cfgType.NumField(); i++ {
		section := cfgType.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			key := section.Tag.Get("mapstructure") + "." + section.Type.Field(j).Tag.Get("mapstructure")
			if err := viper.BindEnv(key); err != nil {
				return nil, fmt.Errorf("binding env for %s: %w", key, err)
			}
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("PROXYROTATOR_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return cfg, nil
}
