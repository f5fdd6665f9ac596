// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Torn     TornConfig     `mapstructure:"torn"`
	Model    ModelConfig    `mapstructure:"model"`
	Score    ScoreConfig    `mapstructure:"score"`
	Signals  SignalsConfig  `mapstructure:"signals"`
	Server   ServerConfig   `mapstructure:"server"`
	Patrol   PatrolConfig   `mapstructure:"patrol"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// TornConfig holds Torn API access and history-refresh configuration.
type TornConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	PageURL        string        `mapstructure:"page_url"`
	APIKey         string        `mapstructure:"api_key"`
	LookbackDays   int           `mapstructure:"lookback_days"`
	HistoryTTL     time.Duration `mapstructure:"history_ttl"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// ModelConfig holds decay-model configuration.
type ModelConfig struct {
	HalfLifeDays       int `mapstructure:"half_life_days"`
	MinPersonalSamples int `mapstructure:"min_personal_samples"`
}

// ScoreConfig holds score classification configuration.
type ScoreConfig struct {
	JuicyThreshold int  `mapstructure:"juicy_threshold"`
	MaybeThreshold int  `mapstructure:"maybe_threshold"`
	ChainMode      bool `mapstructure:"chain_mode"`
}

// SignalsConfig holds per-signal enablement and freshness configuration.
type SignalsConfig struct {
	EnableStatus   bool          `mapstructure:"enable_status"`
	EnableBazaar   bool          `mapstructure:"enable_bazaar"`
	ProfileTTL     time.Duration `mapstructure:"profile_ttl"`
	BazaarTTL      time.Duration `mapstructure:"bazaar_ttl"`
	BazaarMinPrice int64         `mapstructure:"bazaar_min_price"`
	BazaarMaxPrice int64         `mapstructure:"bazaar_max_price"`
	BazaarTopN     int           `mapstructure:"bazaar_top_n"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	ListenAddr string        `mapstructure:"listen_addr"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PatrolConfig holds the periodic watchlist scan configuration.
type PatrolConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	NotifyCooldown time.Duration `mapstructure:"notify_cooldown"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MaxAttacks int    `mapstructure:"max_attacks"`
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

	v.SetEnvPrefix("HAWKEYE")
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
	// Torn defaults
	v.SetDefault("torn.api_url", "https://api.torn.com")
	v.SetDefault("torn.page_url", "https://www.torn.com")
	v.SetDefault("torn.lookback_days", 60)
	v.SetDefault("torn.history_ttl", "6h")
	v.SetDefault("torn.timeout", "30s")
	v.SetDefault("torn.max_retries", 3)
	v.SetDefault("torn.retry_delay_base", "1s")

	// Model defaults
	v.SetDefault("model.half_life_days", 21)
	v.SetDefault("model.min_personal_samples", 2)

	// Score defaults
	v.SetDefault("score.juicy_threshold", 70)
	v.SetDefault("score.maybe_threshold", 40)
	v.SetDefault("score.chain_mode", false)

	// Signal defaults
	v.SetDefault("signals.enable_status", true)
	v.SetDefault("signals.enable_bazaar", true)
	v.SetDefault("signals.profile_ttl", "10m")
	v.SetDefault("signals.bazaar_ttl", "4h")
	v.SetDefault("signals.bazaar_min_price", 1000)
	v.SetDefault("signals.bazaar_max_price", 250000000)
	v.SetDefault("signals.bazaar_top_n", 20)

	// Server defaults
	v.SetDefault("server.listen_addr", ":8710")
	v.SetDefault("server.timeout", "45s")

	// Patrol defaults
	v.SetDefault("patrol.enabled", false)
	v.SetDefault("patrol.interval", "15m")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.notify_cooldown", "2h")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/hawkeye.db")
	v.SetDefault("storage.max_attacks", 10000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Torn.APIURL == "" {
		return fmt.Errorf("torn.api_url is required")
	}
	if c.Torn.PageURL == "" {
		return fmt.Errorf("torn.page_url is required")
	}
	if c.Torn.LookbackDays < 1 || c.Torn.LookbackDays > 365 {
		return fmt.Errorf("torn.lookback_days must be between 1 and 365")
	}
	if c.Torn.HistoryTTL < time.Minute {
		return fmt.Errorf("torn.history_ttl must be at least 1 minute")
	}
	if c.Torn.Timeout < time.Second {
		return fmt.Errorf("torn.timeout must be at least 1 second")
	}

	if c.Model.HalfLifeDays < 3 || c.Model.HalfLifeDays > 60 {
		return fmt.Errorf("model.half_life_days must be between 3 and 60")
	}
	if c.Model.MinPersonalSamples < 1 {
		return fmt.Errorf("model.min_personal_samples must be at least 1")
	}

	if c.Score.JuicyThreshold < 0 || c.Score.JuicyThreshold > 100 {
		return fmt.Errorf("score.juicy_threshold must be between 0 and 100")
	}
	if c.Score.MaybeThreshold < 0 || c.Score.MaybeThreshold > 100 {
		return fmt.Errorf("score.maybe_threshold must be between 0 and 100")
	}
	if c.Score.MaybeThreshold > c.Score.JuicyThreshold {
		return fmt.Errorf("score.maybe_threshold must not exceed score.juicy_threshold")
	}

	if c.Signals.ProfileTTL < time.Minute {
		return fmt.Errorf("signals.profile_ttl must be at least 1 minute")
	}
	if c.Signals.BazaarTTL < time.Minute {
		return fmt.Errorf("signals.bazaar_ttl must be at least 1 minute")
	}
	if c.Signals.BazaarMinPrice < 0 {
		return fmt.Errorf("signals.bazaar_min_price must not be negative")
	}
	if c.Signals.BazaarMaxPrice <= c.Signals.BazaarMinPrice {
		return fmt.Errorf("signals.bazaar_max_price must exceed signals.bazaar_min_price")
	}
	if c.Signals.BazaarTopN < 1 {
		return fmt.Errorf("signals.bazaar_top_n must be at least 1")
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Patrol.Enabled && c.Patrol.Interval < time.Minute {
		return fmt.Errorf("patrol.interval must be at least 1 minute")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxAttacks < 100 {
		return fmt.Errorf("storage.max_attacks must be at least 100")
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
