package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("RC_CLIENT_ID", "client")
	t.Setenv("RC_CLIENT_SECRET", "secret")
	t.Setenv("RC_JWT", "eyJ.jwt.sig")
	t.Setenv("RC_EXTENSION_ID", "101")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/token")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.RingCentral.Server != "https://platform.ringcentral.com" {
		t.Errorf("Server = %q, want default", cfg.RingCentral.Server)
	}
	if cfg.RingCentral.AccountID != "~" {
		t.Errorf("AccountID = %q, want %q", cfg.RingCentral.AccountID, "~")
	}
	if cfg.RingCentral.PerPage != 50 || cfg.RingCentral.MaxPages != 10 || cfg.RingCentral.DaysBack != 14 {
		t.Errorf("paging = %d/%d/%d, want 50/10/14", cfg.RingCentral.PerPage, cfg.RingCentral.MaxPages, cfg.RingCentral.DaysBack)
	}
	if cfg.RingCentral.Transcription.Attempts != 6 || cfg.RingCentral.Transcription.Interval != 2*time.Second {
		t.Errorf("transcription = %+v, want 6 x 2s", cfg.RingCentral.Transcription)
	}
	if cfg.PollInterval() != time.Minute {
		t.Errorf("PollInterval() = %s, want 1m", cfg.PollInterval())
	}
	if cfg.RingCentral.ClientID != "client" || cfg.RingCentral.JWT != "eyJ.jwt.sig" {
		t.Errorf("credentials not loaded from env: %+v", cfg.RingCentral)
	}
	if cfg.Webhook.URL != "https://discord.com/api/webhooks/1/token" {
		t.Errorf("Webhook.URL = %q", cfg.Webhook.URL)
	}
}

func TestLegacyAndPrefixedEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_SECONDS", "15")
	t.Setenv("PER_PAGE", "20")
	t.Setenv("VMRELAY_WEBHOOK_TIMEOUT", "3s")
	t.Setenv("VMRELAY_REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Poll.IntervalSeconds != 15 {
		t.Errorf("IntervalSeconds = %d, want 15", cfg.Poll.IntervalSeconds)
	}
	if cfg.RingCentral.PerPage != 20 {
		t.Errorf("PerPage = %d, want 20", cfg.RingCentral.PerPage)
	}
	if cfg.Webhook.Timeout != 3*time.Second {
		t.Errorf("Webhook.Timeout = %s, want 3s", cfg.Webhook.Timeout)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
}

func TestValidateMissingEnv(t *testing.T) {
	for _, name := range []string{"RC_CLIENT_ID", "RC_CLIENT_SECRET", "RC_JWT", "RC_EXTENSION_ID", "DISCORD_WEBHOOK_URL"} {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(name, "")

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			err = cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cerr.Key != name {
				t.Errorf("Key = %q, want %q", cerr.Key, name)
			}
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"relative webhook", func(c *Config) { c.Webhook.URL = "/api/webhooks/1" }, "DISCORD_WEBHOOK_URL"},
		{"zero per page", func(c *Config) { c.RingCentral.PerPage = 0 }, "PER_PAGE"},
		{"zero poll", func(c *Config) { c.Poll.IntervalSeconds = 0 }, "POLL_SECONDS"},
		{"unknown driver", func(c *Config) { c.Journal.Driver = "oracle" }, "journal.driver"},
		{"driver without dsn", func(c *Config) { c.Journal.Driver = "sqlite" }, "journal.dsn"},
	}

	setRequired(t)
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			var cerr *ConfigError
			if err := cfg.Validate(); !errors.As(err, &cerr) || cerr.Key != tt.key {
				t.Fatalf("Validate() = %v, want ConfigError for %s", err, tt.key)
			}
		})
	}
}

func TestLoadMergesFile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "vm-relay.yaml")
	data := []byte("journal:\n  driver: sqlite\n  dsn: file:journal.db\nwebhook:\n  content: Voicemail\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.DSN != "file:journal.db" {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
	if cfg.Webhook.Content != "Voicemail" {
		t.Errorf("Content = %q, want %q", cfg.Webhook.Content, "Voicemail")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cerr *ConfigError
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.As(err, &cerr) {
		t.Fatalf("Load() = %v, want *ConfigError", err)
	}
}

func TestValidateJournalWithoutCredentials(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	var cerr *ConfigError
	if err := cfg.ValidateJournal(); !errors.As(err, &cerr) || cerr.Key != "journal.driver" {
		t.Fatalf("ValidateJournal() = %v, want ConfigError for journal.driver", err)
	}

	cfg.Journal.Driver = "sqlite"
	cfg.Journal.DSN = "file:journal.db"
	if err := cfg.ValidateJournal(); err != nil {
		t.Errorf("ValidateJournal() error: %v", err)
	}
}
