// Package config loads application configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	MLB      MLBConfig      `mapstructure:"mlb"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
}

// MLBConfig holds stats API configuration.
type MLBConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimitRPS float64       `mapstructure:"rate_limit_rps"`
}

// ParserConfig holds bet extraction configuration.
type ParserConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TrackingConfig holds polling and alerting behavior.
type TrackingConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxConcurrentPolls int           `mapstructure:"max_concurrent_polls"`
	WindowStart        string        `mapstructure:"window_start"` // HH:MM local
	WindowEnd          string        `mapstructure:"window_end"`   // HH:MM local
	PregameLeadsMin    []int         `mapstructure:"pregame_leads_min"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from an optional file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BETENGINE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mlb.base_url", "https://statsapi.mlb.com/api/v1")
	v.SetDefault("mlb.timeout", "30s")
	v.SetDefault("mlb.rate_limit_rps", 5.0)

	v.SetDefault("parser.base_url", "https://api.openai.com/v1")
	v.SetDefault("parser.model", "gpt-4o-mini")
	v.SetDefault("parser.timeout", "30s")

	v.SetDefault("tracking.poll_interval", "20s")
	v.SetDefault("tracking.max_concurrent_polls", 4)
	v.SetDefault("tracking.window_start", "10:00")
	v.SetDefault("tracking.window_end", "23:59")
	v.SetDefault("tracking.pregame_leads_min", []int{120, 30, 10})

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("storage.db_path", "./data/betengine.db")

	v.SetDefault("server.addr", ":8090")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.MLB.BaseURL == "" {
		return fmt.Errorf("mlb.base_url is required")
	}
	if c.MLB.RateLimitRPS <= 0 {
		return fmt.Errorf("mlb.rate_limit_rps must be positive")
	}
	if c.Parser.APIKey == "" {
		return fmt.Errorf("parser.api_key is required")
	}
	if c.Tracking.PollInterval < 5*time.Second {
		return fmt.Errorf("tracking.poll_interval must be at least 5 seconds")
	}
	if c.Tracking.MaxConcurrentPolls < 1 {
		return fmt.Errorf("tracking.max_concurrent_polls must be at least 1")
	}
	for _, lead := range c.Tracking.PregameLeadsMin {
		if lead < 1 {
			return fmt.Errorf("tracking.pregame_leads_min entries must be positive minutes")
		}
	}
	start, end, err := c.Window()
	if err != nil {
		return err
	}
	if start > end {
		return fmt.Errorf("tracking.window_start must not be after tracking.window_end")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// Window returns the active polling window as minutes from midnight.
func (c *Config) Window() (start, end int, err error) {
	if start, err = parseClock(c.Tracking.WindowStart); err != nil {
		return 0, 0, fmt.Errorf("tracking.window_start: %w", err)
	}
	if end, err = parseClock(c.Tracking.WindowEnd); err != nil {
		return 0, 0, fmt.Errorf("tracking.window_end: %w", err)
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// PregameLeads converts the configured lead minutes to durations, longest
// first.
func (c *Config) PregameLeads() []time.Duration {
	leads := make([]time.Duration, 0, len(c.Tracking.PregameLeadsMin))
	for _, m := range c.Tracking.PregameLeadsMin {
		leads = append(leads, time.Duration(m)*time.Minute)
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i] > leads[j] })
	return leads
}
