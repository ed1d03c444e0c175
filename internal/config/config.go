// Package config loads and validates the tracker configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig holds the upstream spreadsheet endpoint configuration.
// PageURL is fetched first to establish session cookies; DataURL serves the
// spreadsheet itself.
type SourceConfig struct {
	PageURL        string        `mapstructure:"page_url"`
	DataURL        string        `mapstructure:"data_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RetryDelayMax  time.Duration `mapstructure:"retry_delay_max"`
}

// ScheduleConfig holds the trading-window and cycle timing configuration.
// WindowStart/WindowEnd are wall-clock times ("15:04") in Timezone; the window
// is start-inclusive and end-exclusive.
type ScheduleConfig struct {
	WindowStart string        `mapstructure:"window_start"`
	WindowEnd   string        `mapstructure:"window_end"`
	Interval    time.Duration `mapstructure:"interval"`
	Timezone    string        `mapstructure:"timezone"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path"`
	RawDir       string `mapstructure:"raw_dir"`
	MaxRawPerDay int    `mapstructure:"max_raw_per_day"`
}

// TelegramConfig holds the bot consumer configuration.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
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

	v.SetEnvPrefix("OISPURTS")
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
	v.SetDefault("source.page_url", "https://www.nseindia.com/market-data/oi-spurts")
	v.SetDefault("source.data_url", "https://www.nseindia.com/api/live-analysis-oi-spurts-underlyings")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.retry_delay_base", "1s")
	v.SetDefault("source.retry_delay_max", "30s")

	v.SetDefault("schedule.window_start", "10:00")
	v.SetDefault("schedule.window_end", "14:30")
	v.SetDefault("schedule.interval", "20m")
	v.SetDefault("schedule.timezone", "Asia/Kolkata")

	v.SetDefault("storage.db_path", "./data/oispurts.db")
	v.SetDefault("storage.raw_dir", "./data/raw")
	v.SetDefault("storage.max_raw_per_day", 50)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// clockLayout is the wall-clock layout for window boundaries.
const clockLayout = "15:04"

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Source.PageURL == "" {
		return fmt.Errorf("source.page_url is required")
	}
	if c.Source.DataURL == "" {
		return fmt.Errorf("source.data_url is required")
	}
	if c.Source.Timeout < time.Second {
		return fmt.Errorf("source.timeout must be at least 1 second")
	}
	if c.Source.MaxRetries < 1 {
		return fmt.Errorf("source.max_retries must be at least 1")
	}
	if c.Source.RetryDelayBase <= 0 {
		return fmt.Errorf("source.retry_delay_base must be positive")
	}
	if c.Source.RetryDelayMax < c.Source.RetryDelayBase {
		return fmt.Errorf("source.retry_delay_max must be >= retry_delay_base")
	}

	start, err := time.Parse(clockLayout, c.Schedule.WindowStart)
	if err != nil {
		return fmt.Errorf("schedule.window_start must be HH:MM: %w", err)
	}
	end, err := time.Parse(clockLayout, c.Schedule.WindowEnd)
	if err != nil {
		return fmt.Errorf("schedule.window_end must be HH:MM: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("schedule.window_end must be after schedule.window_start")
	}
	if c.Schedule.Interval < time.Minute {
		return fmt.Errorf("schedule.interval must be at least 1 minute")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone is invalid: %w", err)
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.RawDir == "" {
		return fmt.Errorf("storage.raw_dir is required")
	}
	if c.Storage.MaxRawPerDay < 1 {
		return fmt.Errorf("storage.max_raw_per_day must be at least 1")
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
