// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Catalog    CatalogConfig   `mapstructure:"catalog"`
	Probe      ProbeConfig     `mapstructure:"probe"`
	Schedule   ScheduleConfig  `mapstructure:"schedule"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	AntiBot    AntiBotConfig   `mapstructure:"antibot"`
	Governor   GovernorConfig  `mapstructure:"governor"`
	Alerting   AlertingConfig  `mapstructure:"alerting"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the reporting API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CatalogConfig locates the directory catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// ProbeConfig governs the per-directory probe pipeline.
type ProbeConfig struct {
	TimeoutMs    int     `mapstructure:"timeout_ms"`
	UserAgent    string  `mapstructure:"user_agent"`
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
	MaxBodyBytes int64   `mapstructure:"max_body_bytes"`
}

// ScheduleConfig controls batch partitioning and cadence.
type ScheduleConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	BatchIntervalMs int `mapstructure:"batch_interval_ms"`
	CycleIntervalMs int `mapstructure:"cycle_interval_ms"`
}

// ThresholdConfig holds the alert policy trip points.
type ThresholdConfig struct {
	ResponseTimeWarnMs   int     `mapstructure:"response_time_warn_ms"`
	SuccessRateCritical  float64 `mapstructure:"success_rate_critical"`
	SelectorAccuracyWarn float64 `mapstructure:"selector_accuracy_warn"`
}

// AntiBotConfig exposes the heuristic signal weights as tunables.
type AntiBotConfig struct {
	CaptchaWeight     int `mapstructure:"captcha_weight"`
	EdgeWeight        int `mapstructure:"edge_weight"`
	RateLimitWeight   int `mapstructure:"rate_limit_weight"`
	JSChallengeWeight int `mapstructure:"js_challenge_weight"`
	DenialWeight      int `mapstructure:"denial_weight"`
	MediumThreshold   int `mapstructure:"medium_threshold"`
	HighThreshold     int `mapstructure:"high_threshold"`
}

// GovernorConfig bounds the monitor's aggregate probing cost.
type GovernorConfig struct {
	MaxCostPerDirectoryMs int `mapstructure:"max_cost_per_directory_ms"`
	WindowSize            int `mapstructure:"window_size"`
}

// AlertingConfig selects and configures alert sinks.
type AlertingConfig struct {
	WebhookURL        string `mapstructure:"webhook_url"`
	DeliveryTimeoutMs int    `mapstructure:"delivery_timeout_ms"`
	PubSubProjectID   string `mapstructure:"pubsub_project_id"`
	PubSubTopic       string `mapstructure:"pubsub_topic"`
}

// StorageConfig configures the optional history journal and page archive.
type StorageConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	GCSPrefix   string `mapstructure:"gcs_prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DIRWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("probe.timeout_ms", 10000)
	v.SetDefault("probe.per_host_rps", 1.0)
	v.SetDefault("probe.per_host_burst", 2)
	v.SetDefault("probe.max_body_bytes", 2<<20)
	v.SetDefault("schedule.batch_size", 5)
	v.SetDefault("schedule.batch_interval_ms", 30000)
	v.SetDefault("schedule.cycle_interval_ms", 3600000)
	v.SetDefault("thresholds.response_time_warn_ms", 5000)
	v.SetDefault("thresholds.success_rate_critical", 0.95)
	v.SetDefault("thresholds.selector_accuracy_warn", 0.90)
	v.SetDefault("antibot.captcha_weight", 30)
	v.SetDefault("antibot.edge_weight", 20)
	v.SetDefault("antibot.rate_limit_weight", 25)
	v.SetDefault("antibot.js_challenge_weight", 15)
	v.SetDefault("antibot.denial_weight", 35)
	v.SetDefault("antibot.medium_threshold", 25)
	v.SetDefault("antibot.high_threshold", 50)
	v.SetDefault("governor.max_cost_per_directory_ms", 1500)
	v.SetDefault("governor.window_size", 10)
	v.SetDefault("alerting.delivery_timeout_ms", 5000)
	v.SetDefault("storage.gcs_prefix", "captures")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. This is the only
// fail-fast path in the monitor: everything after startup is recorded as
// data, never raised.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path must be set")
	}
	if c.Probe.TimeoutMs <= 0 {
		return fmt.Errorf("probe.timeout_ms must be > 0")
	}
	if c.Schedule.BatchSize <= 0 {
		return fmt.Errorf("schedule.batch_size must be > 0")
	}
	if c.Schedule.BatchIntervalMs < 0 {
		return fmt.Errorf("schedule.batch_interval_ms must be >= 0")
	}
	if c.Schedule.CycleIntervalMs <= 0 {
		return fmt.Errorf("schedule.cycle_interval_ms must be > 0")
	}
	if c.Thresholds.SuccessRateCritical < 0 || c.Thresholds.SuccessRateCritical > 1 {
		return fmt.Errorf("thresholds.success_rate_critical must be in [0,1]")
	}
	if c.Thresholds.SelectorAccuracyWarn < 0 || c.Thresholds.SelectorAccuracyWarn > 1 {
		return fmt.Errorf("thresholds.selector_accuracy_warn must be in [0,1]")
	}
	if c.AntiBot.HighThreshold < c.AntiBot.MediumThreshold {
		return fmt.Errorf("antibot.high_threshold must be >= antibot.medium_threshold")
	}
	if c.Governor.MaxCostPerDirectoryMs <= 0 {
		return fmt.Errorf("governor.max_cost_per_directory_ms must be > 0")
	}
	if c.Governor.WindowSize <= 0 {
		return fmt.Errorf("governor.window_size must be > 0")
	}
	return nil
}

// ProbeTimeout returns the per-request probe timeout as a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutMs) * time.Millisecond
}

// BatchInterval returns the stagger delay between batch starts.
func (c Config) BatchInterval() time.Duration {
	return time.Duration(c.Schedule.BatchIntervalMs) * time.Millisecond
}

// CycleInterval returns the nominal full monitoring cycle length.
func (c Config) CycleInterval() time.Duration {
	return time.Duration(c.Schedule.CycleIntervalMs) * time.Millisecond
}
