package config

import "time"

// Config holds all configuration for a rotator (spec §3, ambient
// configuration concern: YAML/env loading via viper, no hot reload).
type Config struct {
	Pool     PoolConfig     `yaml:"pool" mapstructure:"pool"`
	Strategy StrategyConfig `yaml:"strategy" mapstructure:"strategy"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Health   HealthConfig   `yaml:"health" mapstructure:"health"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// PoolConfig bounds the proxy pool (spec §3.2).
type PoolConfig struct {
	MaxSize int `yaml:"max_size" mapstructure:"max_size"`
}

// StrategyConfig selects and tunes a selection strategy (spec §4.2).
type StrategyConfig struct {
	Name                 string  `yaml:"name" mapstructure:"name"`
	EMAAlpha             float64 `yaml:"ema_alpha" mapstructure:"ema_alpha"`
	ExplorationThreshold int64   `yaml:"exploration_threshold" mapstructure:"exploration_threshold"`
	SessionTTLSeconds    int64   `yaml:"session_ttl_seconds" mapstructure:"session_ttl_seconds"`
	GeoFallbackEnabled   bool    `yaml:"geo_fallback_enabled" mapstructure:"geo_fallback_enabled"`
	Fallback             string  `yaml:"fallback" mapstructure:"fallback"`
}

// BreakerConfig tunes the per-proxy circuit breaker (spec §3.4).
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	WindowDuration   time.Duration `yaml:"window_duration" mapstructure:"window_duration"`
	CooldownDuration time.Duration `yaml:"cooldown_duration" mapstructure:"cooldown_duration"`
}

// RetryConfig is the default retry.Policy expressed for config loading
// (spec §3.5, §4.4).
type RetryConfig struct {
	MaxAttempts        int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffStrategy    string        `yaml:"backoff_strategy" mapstructure:"backoff_strategy"`
	BaseDelay          time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	Multiplier         float64       `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter             bool          `yaml:"jitter" mapstructure:"jitter"`
	RetryStatusCodes   []int         `yaml:"retry_status_codes" mapstructure:"retry_status_codes"`
	RetryNonIdempotent bool          `yaml:"retry_non_idempotent" mapstructure:"retry_non_idempotent"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// HealthConfig tunes the background health monitor (spec §3.6, §4.6).
type HealthConfig struct {
	CheckInterval    time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	Concurrency      int           `yaml:"concurrency" mapstructure:"concurrency"`
	CheckURL         string        `yaml:"check_url" mapstructure:"check_url"`
	CheckTimeout     time.Duration `yaml:"check_timeout" mapstructure:"check_timeout"`
}

// LoggingConfig holds logging configuration, carried as an ambient concern
// regardless of which domain features are in scope.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Theme      string `yaml:"theme" mapstructure:"theme"`
	FileOutput bool   `yaml:"file_output" mapstructure:"file_output"`
	LogDir     string `yaml:"log_dir" mapstructure:"log_dir"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
	PrettyLogs bool   `yaml:"pretty_logs" mapstructure:"pretty_logs"`
}
