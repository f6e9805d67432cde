// Package config loads and validates the application configuration from a
// YAML file and POSTFLOW_-prefixed environment variables via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Store     StoreConfig     `mapstructure:"store"`
	Transport TransportConfig `mapstructure:"transport"`
	Platform  string          `mapstructure:"platform"`
}

// LoggerConfig controls the zap logger factory.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
	AddSource   bool   `mapstructure:"add_source"`
}

// EngineConfig tunes the retry policies and wait budgets of the workflow.
type EngineConfig struct {
	HardMaxAttempts  int           `mapstructure:"hard_max_attempts"`
	SoftMaxAttempts  int           `mapstructure:"soft_max_attempts"`
	InitialRetryWait time.Duration `mapstructure:"initial_retry_wait"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout"`
	WaitAttempts     int           `mapstructure:"wait_attempts"`
	SettleTime       time.Duration `mapstructure:"settle_time"`
	GraceTime        time.Duration `mapstructure:"grace_time"`
	ImageConcurrency int           `mapstructure:"image_concurrency"`
	ImageRatePerSec  float64       `mapstructure:"image_rate_per_sec"`
	ImageTimeout     time.Duration `mapstructure:"image_timeout"`
}

// BrowserConfig controls the chromedp allocator and typing cadence.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	KeyPauseMeanMs    float64       `mapstructure:"key_pause_mean_ms"`
	KeyPauseStdDevMs  float64       `mapstructure:"key_pause_stddev_ms"`
	KeyPauseMinMs     float64       `mapstructure:"key_pause_min_ms"`
}

// StoreConfig selects the durable state backend.
type StoreConfig struct {
	Backend   string        `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// TransportConfig configures the NATS connection used for the RPC surface
// and outbound progress events.
type TransportConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Load reads the configuration from the given file (or ./config.yaml when
// empty), layering POSTFLOW_ environment variables on top of defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("POSTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "postflow")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("engine.hard_max_attempts", 3)
	v.SetDefault("engine.soft_max_attempts", 3)
	v.SetDefault("engine.initial_retry_wait", 1*time.Second)
	v.SetDefault("engine.wait_timeout", 10*time.Second)
	v.SetDefault("engine.wait_attempts", 3)
	v.SetDefault("engine.settle_time", 2*time.Second)
	v.SetDefault("engine.grace_time", 3*time.Second)
	v.SetDefault("engine.image_concurrency", 3)
	v.SetDefault("engine.image_rate_per_sec", 2.0)
	v.SetDefault("engine.image_timeout", 30*time.Second)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.key_pause_mean_ms", 120.0)
	v.SetDefault("browser.key_pause_stddev_ms", 40.0)
	v.SetDefault("browser.key_pause_min_ms", 30.0)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.ttl", 24*time.Hour)

	v.SetDefault("transport.nats_url", "nats://localhost:4222")
	v.SetDefault("transport.subject_prefix", "postflow")

	v.SetDefault("platform", "marketplace")
}
