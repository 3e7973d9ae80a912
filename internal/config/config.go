package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AppConfig holds general application settings.
type AppConfig struct {
	Name string `yaml:"name" envconfig:"APP_NAME"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// SessionConfig controls the in-memory conversation session store.
type SessionConfig struct {
	TTLMinutes      int `yaml:"ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
	SweepSeconds    int `yaml:"sweep_seconds" envconfig:"SESSION_SWEEP_SECONDS"`
	MaxEntries      int `yaml:"max_entries" envconfig:"SESSION_MAX_ENTRIES"`
	HistoryEntries  int `yaml:"history_entries" envconfig:"SESSION_HISTORY_ENTRIES"`
}

// WhatsAppConfig holds the Twilio webhook transport settings.
type WhatsAppConfig struct {
	Enabled           bool   `yaml:"enabled" envconfig:"WHATSAPP_ENABLED"`
	Listen            string `yaml:"listen" envconfig:"WHATSAPP_LISTEN"`
	AccountSID        string `yaml:"account_sid" envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken         string `yaml:"auth_token" envconfig:"TWILIO_AUTH_TOKEN"`
	PhoneNumber       string `yaml:"phone_number" envconfig:"TWILIO_PHONE_NUMBER"`
	PublicURL         string `yaml:"public_url" envconfig:"WHATSAPP_PUBLIC_URL"`
	ValidateSignature bool   `yaml:"validate_signature" envconfig:"WHATSAPP_VALIDATE_SIGNATURE"`
}

// TelegramConfig holds the optional Telegram transport settings.
type TelegramConfig struct {
	Enabled                bool   `yaml:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token                  string `yaml:"token" envconfig:"BOT_TOKEN"`
	LongPollTimeoutSeconds int    `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// PaynowConfig holds the payment gateway settings.
type PaynowConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"PAYNOW_BASE_URL"`
	IntegrationID  string `yaml:"integration_id" envconfig:"PAYNOW_INTEGRATION_ID"`
	IntegrationKey string `yaml:"integration_key" envconfig:"PAYNOW_INTEGRATION_KEY"`
	ResultURL      string `yaml:"result_url" envconfig:"PAYNOW_RESULT_URL"`
	ReturnURL      string `yaml:"return_url" envconfig:"PAYNOW_RETURN_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"PAYNOW_TIMEOUT_SECONDS"`
}

// Config aggregates the full application configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Telegram TelegramConfig `yaml:"telegram"`
	Paynow   PaynowConfig   `yaml:"paynow"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.App.Name == "" {
		cfg.App.Name = "walletbot"
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}

	if cfg.Session.TTLMinutes <= 0 {
		cfg.Session.TTLMinutes = 30
	}
	if cfg.Session.SweepSeconds <= 0 {
		cfg.Session.SweepSeconds = 60
	}
	if cfg.Session.MaxEntries <= 0 {
		cfg.Session.MaxEntries = 10000
	}
	if cfg.Session.HistoryEntries <= 0 {
		cfg.Session.HistoryEntries = 5
	}

	if !cfg.WhatsApp.Enabled && !cfg.Telegram.Enabled {
		return fmt.Errorf("at least one transport must be enabled (whatsapp or telegram)")
	}
	if cfg.WhatsApp.Enabled {
		if strings.TrimSpace(cfg.WhatsApp.Listen) == "" {
			cfg.WhatsApp.Listen = ":8080"
		}
		if cfg.WhatsApp.ValidateSignature && cfg.WhatsApp.AuthToken == "" {
			return fmt.Errorf("whatsapp.auth_token is required when whatsapp.validate_signature is set")
		}
	}
	if cfg.Telegram.Enabled {
		if cfg.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled is set")
		}
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	}

	if cfg.Paynow.BaseURL == "" {
		cfg.Paynow.BaseURL = "https://www.paynow.co.zw"
	}
	if cfg.Paynow.TimeoutSeconds <= 0 {
		cfg.Paynow.TimeoutSeconds = 30
	}

	lvl := strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	switch lvl {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level %q; allowed: debug, info, warn, error", cfg.Logging.Level)
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	switch format {
	case "", "kv", "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q; allowed: kv, json", cfg.Logging.Format)
	}

	return nil
}
