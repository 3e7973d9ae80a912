package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Name: "walletbot"},
		WhatsApp: WhatsAppConfig{Enabled: true},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if cfg.App.Name != "walletbot" {
		t.Errorf("app name default = %q", cfg.App.Name)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" || cfg.Database.MaxConnections != 10 {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Session.TTLMinutes != 30 || cfg.Session.SweepSeconds != 60 || cfg.Session.MaxEntries != 10000 || cfg.Session.HistoryEntries != 5 {
		t.Errorf("session defaults = %+v", cfg.Session)
	}
	if cfg.WhatsApp.Listen != ":8080" {
		t.Errorf("listen default = %q", cfg.WhatsApp.Listen)
	}
	if cfg.Paynow.BaseURL != "https://www.paynow.co.zw" || cfg.Paynow.TimeoutSeconds != 30 {
		t.Errorf("paynow defaults = %+v", cfg.Paynow)
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"missing database host",
			func(c *Config) { c.Database.Host = "" },
			"database.host",
		},
		{
			"missing database name",
			func(c *Config) { c.Database.Name = "" },
			"database.name",
		},
		{
			"no transport enabled",
			func(c *Config) { c.WhatsApp.Enabled = false },
			"at least one transport",
		},
		{
			"telegram without token",
			func(c *Config) { c.Telegram.Enabled = true },
			"telegram.token",
		},
		{
			"signature validation without token",
			func(c *Config) { c.WhatsApp.ValidateSignature = true },
			"whatsapp.auth_token",
		},
		{
			"bad log level",
			func(c *Config) { c.Logging.Level = "verbose" },
			"logging.level",
		},
		{
			"bad log format",
			func(c *Config) { c.Logging.Format = "xml" },
			"logging.format",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Normalize(cfg)
			if err == nil {
				t.Fatal("Normalize accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
database:
  host: db.internal
  name: walletbot
whatsapp:
  enabled: true
telegram:
  enabled: true
  token: file-token
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOT_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("host = %q", cfg.Database.Host)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("token = %q, want env override", cfg.Telegram.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}
