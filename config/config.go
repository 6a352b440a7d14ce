package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Serial    SerialConfig    `yaml:"serial"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Channels  ChannelsConfig  `yaml:"channels"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SerialConfig holds the device serial link configuration.
type SerialConfig struct {
	Port                  string        `yaml:"port"`
	BaudRate              int           `yaml:"baud_rate"`
	CommandTimeoutSeconds int           `yaml:"command_timeout_seconds"`
	ReconnectDelaySeconds int           `yaml:"reconnect_delay_seconds"`
	SettleDelayMillis     int           `yaml:"settle_delay_ms"`
	CommandTimeout        time.Duration `yaml:"-"`
	ReconnectDelay        time.Duration `yaml:"-"`
	SettleDelay           time.Duration `yaml:"-"`
}

// RedisConfig holds the durable queue backend configuration.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SchedulerConfig holds the sweep intervals and thresholds for the durable
// queue scheduler.
type SchedulerConfig struct {
	OverdueIntervalSeconds   int           `yaml:"overdue_interval_seconds"`
	PromotionIntervalSeconds int           `yaml:"promotion_interval_seconds"`
	HealthIntervalSeconds    int           `yaml:"health_interval_seconds"`
	OverdueThresholdMillis   int           `yaml:"overdue_threshold_ms"`
	PromotionHorizonMillis   int           `yaml:"promotion_horizon_ms"`
	InlineThresholdMillis    int           `yaml:"inline_threshold_ms"`
	StalledAfterSeconds      int           `yaml:"stalled_after_seconds"`
	MaxAttempts              int           `yaml:"max_attempts"`
	OverdueInterval          time.Duration `yaml:"-"`
	PromotionInterval        time.Duration `yaml:"-"`
	HealthInterval           time.Duration `yaml:"-"`
	OverdueThreshold         time.Duration `yaml:"-"`
	PromotionHorizon         time.Duration `yaml:"-"`
	InlineThreshold          time.Duration `yaml:"-"`
	StalledAfter             time.Duration `yaml:"-"`
}

// ReconcileConfig holds the reconciliation job configuration.
type ReconcileConfig struct {
	Timezone            string        `yaml:"timezone"`
	BoundarySpec        string        `yaml:"boundary_spec"`
	StartupDelaySeconds int           `yaml:"startup_delay_seconds"`
	DirectSweepEnabled  *bool         `yaml:"direct_sweep_enabled"`
	StartupDelay        time.Duration `yaml:"-"`
}

// ChannelsConfig describes the attached actuator hardware.
type ChannelsConfig struct {
	Count int `yaml:"count"`
}

// Load reads the configuration from the given path and applies defaults for
// unset values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the documented defaults and derives
// the time.Duration fields from their integer counterparts.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Serial.BaudRate <= 0 {
		cfg.Serial.BaudRate = 9600
	}
	if cfg.Serial.CommandTimeoutSeconds <= 0 {
		cfg.Serial.CommandTimeoutSeconds = 7
	}
	if cfg.Serial.ReconnectDelaySeconds <= 0 {
		cfg.Serial.ReconnectDelaySeconds = 5
	}
	if cfg.Serial.SettleDelayMillis <= 0 {
		cfg.Serial.SettleDelayMillis = 500
	}
	cfg.Serial.CommandTimeout = time.Duration(cfg.Serial.CommandTimeoutSeconds) * time.Second
	cfg.Serial.ReconnectDelay = time.Duration(cfg.Serial.ReconnectDelaySeconds) * time.Second
	cfg.Serial.SettleDelay = time.Duration(cfg.Serial.SettleDelayMillis) * time.Millisecond

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "lightd"
	}

	s := &cfg.Scheduler
	if s.OverdueIntervalSeconds <= 0 {
		s.OverdueIntervalSeconds = 5
	}
	if s.PromotionIntervalSeconds <= 0 {
		s.PromotionIntervalSeconds = 1
	}
	if s.HealthIntervalSeconds <= 0 {
		s.HealthIntervalSeconds = 30
	}
	if s.OverdueThresholdMillis <= 0 {
		s.OverdueThresholdMillis = 2000
	}
	if s.PromotionHorizonMillis <= 0 {
		s.PromotionHorizonMillis = 2000
	}
	if s.InlineThresholdMillis <= 0 {
		s.InlineThresholdMillis = 1000
	}
	if s.StalledAfterSeconds <= 0 {
		s.StalledAfterSeconds = 30
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	s.OverdueInterval = time.Duration(s.OverdueIntervalSeconds) * time.Second
	s.PromotionInterval = time.Duration(s.PromotionIntervalSeconds) * time.Second
	s.HealthInterval = time.Duration(s.HealthIntervalSeconds) * time.Second
	s.OverdueThreshold = time.Duration(s.OverdueThresholdMillis) * time.Millisecond
	s.PromotionHorizon = time.Duration(s.PromotionHorizonMillis) * time.Millisecond
	s.InlineThreshold = time.Duration(s.InlineThresholdMillis) * time.Millisecond
	s.StalledAfter = time.Duration(s.StalledAfterSeconds) * time.Second

	if cfg.Reconcile.Timezone == "" {
		cfg.Reconcile.Timezone = "Local"
	}
	if cfg.Reconcile.BoundarySpec == "" {
		cfg.Reconcile.BoundarySpec = "0 0 * * *"
	}
	if cfg.Reconcile.StartupDelaySeconds <= 0 {
		cfg.Reconcile.StartupDelaySeconds = 5
	}
	if cfg.Reconcile.DirectSweepEnabled == nil {
		enabled := true
		cfg.Reconcile.DirectSweepEnabled = &enabled
	}
	cfg.Reconcile.StartupDelay = time.Duration(cfg.Reconcile.StartupDelaySeconds) * time.Second

	if cfg.Channels.Count <= 0 {
		cfg.Channels.Count = 8
	}
}
