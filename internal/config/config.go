// Package config loads and validates the application configuration from a
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Trend       TrendConfig       `mapstructure:"trend"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// AnalyticsConfig holds orchestration behavior.
type AnalyticsConfig struct {
	RunInterval        time.Duration `mapstructure:"run_interval"`
	TrackedBiomarkers  []string      `mapstructure:"tracked_biomarkers"`
	AnalysisBiomarkers []string      `mapstructure:"analysis_biomarkers"`
	TopCorrelations    int           `mapstructure:"top_correlations"`
}

// DetectorConfig holds anomaly detection parameters.
type DetectorConfig struct {
	WindowSize      int     `mapstructure:"window_size"`
	ZThreshold      float64 `mapstructure:"z_threshold"`
	IQRMultiplier   float64 `mapstructure:"iqr_multiplier"`
	MinShiftPercent float64 `mapstructure:"min_shift_percent"`
	ShiftPValue     float64 `mapstructure:"shift_p_value"`
}

// TrendConfig holds trend analysis parameters.
type TrendConfig struct {
	SignificanceLevel float64 `mapstructure:"significance_level"`
	MinSegmentSize    int     `mapstructure:"min_segment_size"`
	ThresholdStd      float64 `mapstructure:"threshold_std"`
}

// CorrelationConfig holds correlation discovery parameters.
type CorrelationConfig struct {
	SignificanceLevel float64 `mapstructure:"significance_level"`
	MinSamples        int     `mapstructure:"min_samples"`
	MaxLagDays        int     `mapstructure:"max_lag_days"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// CacheConfig holds the Redis report cache configuration.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("BIOSENSE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("analytics.run_interval", "24h")
	v.SetDefault("analytics.tracked_biomarkers", []string{"heart_rate", "glucose", "hrv_sdnn"})
	v.SetDefault("analytics.analysis_biomarkers", []string{"heart_rate", "hrv_sdnn", "glucose"})
	v.SetDefault("analytics.top_correlations", 10)

	v.SetDefault("detector.window_size", 30)
	v.SetDefault("detector.z_threshold", 3.0)
	v.SetDefault("detector.iqr_multiplier", 1.5)
	v.SetDefault("detector.min_shift_percent", 15.0)
	v.SetDefault("detector.shift_p_value", 0.01)

	v.SetDefault("trend.significance_level", 0.05)
	v.SetDefault("trend.min_segment_size", 7)
	v.SetDefault("trend.threshold_std", 2.0)

	v.SetDefault("correlation.significance_level", 0.05)
	v.SetDefault("correlation.min_samples", 30)
	v.SetDefault("correlation.max_lag_days", 7)

	v.SetDefault("storage.db_path", "./data/biosense.db")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Analytics.RunInterval < time.Minute {
		return fmt.Errorf("analytics.run_interval must be at least 1 minute")
	}
	if len(c.Analytics.TrackedBiomarkers) == 0 {
		return fmt.Errorf("analytics.tracked_biomarkers must contain at least one biomarker")
	}
	if len(c.Analytics.AnalysisBiomarkers) == 0 {
		return fmt.Errorf("analytics.analysis_biomarkers must contain at least one biomarker")
	}
	if c.Analytics.TopCorrelations < 1 {
		return fmt.Errorf("analytics.top_correlations must be at least 1")
	}

	if c.Detector.WindowSize < 2 {
		return fmt.Errorf("detector.window_size must be at least 2")
	}
	if c.Detector.ZThreshold <= 0 {
		return fmt.Errorf("detector.z_threshold must be positive")
	}
	if c.Detector.IQRMultiplier <= 0 {
		return fmt.Errorf("detector.iqr_multiplier must be positive")
	}
	if c.Detector.MinShiftPercent <= 0 {
		return fmt.Errorf("detector.min_shift_percent must be positive")
	}
	if c.Detector.ShiftPValue <= 0 || c.Detector.ShiftPValue >= 1 {
		return fmt.Errorf("detector.shift_p_value must be between 0 and 1 exclusive")
	}

	if c.Trend.SignificanceLevel <= 0 || c.Trend.SignificanceLevel >= 1 {
		return fmt.Errorf("trend.significance_level must be between 0 and 1 exclusive")
	}
	if c.Trend.MinSegmentSize < 2 {
		return fmt.Errorf("trend.min_segment_size must be at least 2")
	}
	if c.Trend.ThresholdStd <= 0 {
		return fmt.Errorf("trend.threshold_std must be positive")
	}

	if c.Correlation.SignificanceLevel <= 0 || c.Correlation.SignificanceLevel >= 1 {
		return fmt.Errorf("correlation.significance_level must be between 0 and 1 exclusive")
	}
	if c.Correlation.MinSamples < 3 {
		return fmt.Errorf("correlation.min_samples must be at least 3")
	}
	if c.Correlation.MaxLagDays < 0 {
		return fmt.Errorf("correlation.max_lag_days must not be negative")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required when cache is enabled")
		}
		if c.Cache.TTL < time.Second {
			return fmt.Errorf("cache.ttl must be at least 1 second")
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
