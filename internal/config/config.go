// Package config loads shopreply's configuration from config.yaml in the
// shopreply home directory, with env var overrides for secrets and the
// settings most often flipped in deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/shopreply/internal/accounts"
	"github.com/basket/shopreply/internal/draft"
	"github.com/basket/shopreply/internal/otel"
)

// UpstreamConfig points at the marketplace API.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SchedulerConfig controls session defaults and crash recovery.
type SchedulerConfig struct {
	// AutoRestart re-starts sessions last seen running on boot.
	AutoRestart bool `yaml:"auto_restart"`
	// LookbackHours is the fetch window per cycle.
	LookbackHours int `yaml:"lookback_hours"`
	// ShutdownTimeoutSeconds bounds the worker drain on exit.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// TelegramConfig enables operator alerts for failed cycles.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text", "json" or "" for terminal autodetection.
	LogFormat string `yaml:"log_format"`
	DBPath    string `yaml:"db_path"`

	Upstream  UpstreamConfig     `yaml:"upstream"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	LLM       draft.GenkitConfig `yaml:"llm"`
	Telemetry otel.Config        `yaml:"telemetry"`
	Telegram  TelegramConfig     `yaml:"telegram"`

	// Accounts are the marketplace credentials seeded into the store at
	// boot. API keys normally come from env, not from this file.
	Accounts []accounts.Account `yaml:"accounts"`
}

// Lookback returns the fetch window as a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.Scheduler.LookbackHours) * time.Hour
}

// UpstreamTimeout returns the marketplace API request timeout.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

func defaultConfig() Config {
	return Config{
		BindAddr:  "127.0.0.1:18990",
		LogLevel:  "info",
		LogFormat: "",
		Upstream: UpstreamConfig{
			TimeoutSeconds: 30,
		},
		Scheduler: SchedulerConfig{
			AutoRestart:            true,
			LookbackHours:          24,
			ShutdownTimeoutSeconds: 15,
		},
		LLM: draft.GenkitConfig{
			Provider: "google",
		},
		Telemetry: otel.Config{
			Exporter:    "stdout",
			ServiceName: "shopreply",
			SampleRate:  1.0,
		},
	}
}

// HomeDir returns the shopreply home directory, honoring SHOPREPLY_HOME.
func HomeDir() string {
	if override := os.Getenv("SHOPREPLY_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".shopreply")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the shopreply home, applying defaults for a
// missing file and env overrides on top.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create shopreply home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:18990"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "shopreply.db")
	}
	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 30
	}
	if cfg.Scheduler.LookbackHours <= 0 {
		cfg.Scheduler.LookbackHours = 24
	}
	if cfg.Scheduler.ShutdownTimeoutSeconds <= 0 {
		cfg.Scheduler.ShutdownTimeoutSeconds = 15
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "google"
	}
	// Legacy provider name.
	if cfg.LLM.Provider == "gemini" {
		cfg.LLM.Provider = "google"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "shopreply"
	}
	if cfg.Telemetry.SampleRate <= 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", cfg.LogFormat)
	}
	seen := make(map[string]bool, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		if a.AccountRef == "" {
			return fmt.Errorf("account with empty account_ref")
		}
		if seen[a.AccountRef] {
			return fmt.Errorf("duplicate account_ref %q", a.AccountRef)
		}
		seen[a.AccountRef] = true
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("SHOPREPLY_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("SHOPREPLY_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("SHOPREPLY_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("SHOPREPLY_UPSTREAM_URL"); raw != "" {
		cfg.Upstream.BaseURL = raw
	}
	if raw := os.Getenv("SHOPREPLY_AUTO_RESTART"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Scheduler.AutoRestart = v
		}
	}
	if raw := os.Getenv("SHOPREPLY_LOOKBACK_HOURS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Scheduler.LookbackHours = v
		}
	}
	if raw := os.Getenv("SHOPREPLY_LLM_PROVIDER"); raw != "" {
		cfg.LLM.Provider = raw
	}
	if raw := os.Getenv("SHOPREPLY_LLM_MODEL"); raw != "" {
		cfg.LLM.Model = raw
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	// Marketplace secrets never need to live in the file.
	if raw := os.Getenv("SHOPREPLY_API_KEY"); raw != "" {
		for i := range cfg.Accounts {
			if cfg.Accounts[i].APIKey == "" {
				cfg.Accounts[i].APIKey = raw
			}
		}
	}
	if raw := os.Getenv("SHOPREPLY_API_SECRET"); raw != "" {
		for i := range cfg.Accounts {
			if cfg.Accounts[i].APISecret == "" {
				cfg.Accounts[i].APISecret = raw
			}
		}
	}
}
