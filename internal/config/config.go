package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	RingCentral RingCentralConfig `mapstructure:"ringcentral"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Poll        PollConfig        `mapstructure:"poll"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Journal     DatabaseConfig    `mapstructure:"journal"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RingCentralConfig struct {
	Server        string              `mapstructure:"server"`
	ClientID      string              `mapstructure:"client_id"`
	ClientSecret  string              `mapstructure:"client_secret"`
	JWT           string              `mapstructure:"jwt"`
	AccountID     string              `mapstructure:"account_id"`
	ExtensionID   string              `mapstructure:"extension_id"`
	PerPage       int                 `mapstructure:"per_page"`
	MaxPages      int                 `mapstructure:"max_pages"`
	DaysBack      int                 `mapstructure:"days_back"`
	Timeout       time.Duration       `mapstructure:"timeout"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
}

type TranscriptionConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type WebhookConfig struct {
	URL      string        `mapstructure:"url"`
	Content  string        `mapstructure:"content"`
	Username string        `mapstructure:"username"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Breaker  BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"`
	OpenFor       time.Duration `mapstructure:"open_for"`
}

type PollConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type DedupConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

// PollInterval returns the poll period as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// legacyEnv maps config keys to the plain environment names the deployment scripts use.
// The VMRELAY_<SECTION>_<KEY> form works for every key as well.
var legacyEnv = map[string]string{
	"ringcentral.server":        "RC_SERVER",
	"ringcentral.client_id":     "RC_CLIENT_ID",
	"ringcentral.client_secret": "RC_CLIENT_SECRET",
	"ringcentral.jwt":           "RC_JWT",
	"ringcentral.account_id":    "RC_ACCOUNT_ID",
	"ringcentral.extension_id":  "RC_EXTENSION_ID",
	"ringcentral.per_page":      "PER_PAGE",
	"ringcentral.max_pages":     "MAX_PAGES",
	"ringcentral.days_back":     "DAYS_BACK",
	"webhook.url":               "DISCORD_WEBHOOK_URL",
	"poll.interval_seconds":     "POLL_SECONDS",
	"log.level":                 "LOG_LEVEL",
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides
// (legacy names first, then VMRELAY_*). It does not validate; call Validate before use.
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, &ConfigError{Key: "config", Reason: err.Error()}
		}
	}

	// env override (VMRELAY_*)
	v.SetEnvPrefix("VMRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		prefixed := "VMRELAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, prefixed); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &ConfigError{Key: "config", Reason: err.Error()}
	}
	return cfg, nil
}

// Validate checks the settings every pass needs. It runs before any network call.
func (c Config) Validate() error {
	required := []struct {
		env   string
		value string
	}{
		{"RC_CLIENT_ID", c.RingCentral.ClientID},
		{"RC_CLIENT_SECRET", c.RingCentral.ClientSecret},
		{"RC_JWT", c.RingCentral.JWT},
		{"RC_EXTENSION_ID", c.RingCentral.ExtensionID},
		{"DISCORD_WEBHOOK_URL", c.Webhook.URL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigError{Key: r.env, Reason: "missing required environment variable"}
		}
	}

	if err := validURL("RC_SERVER", c.RingCentral.Server); err != nil {
		return err
	}
	if err := validURL("DISCORD_WEBHOOK_URL", c.Webhook.URL); err != nil {
		return err
	}

	if c.RingCentral.PerPage <= 0 {
		return &ConfigError{Key: "PER_PAGE", Reason: "must be positive"}
	}
	if c.RingCentral.MaxPages <= 0 {
		return &ConfigError{Key: "MAX_PAGES", Reason: "must be positive"}
	}
	if c.RingCentral.DaysBack < 0 {
		return &ConfigError{Key: "DAYS_BACK", Reason: "must not be negative"}
	}
	if c.Poll.IntervalSeconds <= 0 {
		return &ConfigError{Key: "POLL_SECONDS", Reason: "must be positive"}
	}

	if c.Journal.Driver != "" {
		if err := c.ValidateJournal(); err != nil {
			return err
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return &ConfigError{Key: "kafka.topic", Reason: "required when kafka.brokers is set"}
	}

	return nil
}

// ValidateJournal checks the delivery journal settings alone, for commands that
// never talk to the provider.
func (c Config) ValidateJournal() error {
	switch c.Journal.Driver {
	case "mysql", "sqlite":
	case "":
		return &ConfigError{Key: "journal.driver", Reason: "journal is not configured"}
	default:
		return &ConfigError{Key: "journal.driver", Reason: fmt.Sprintf("unsupported driver %q", c.Journal.Driver)}
	}
	if c.Journal.DSN == "" {
		return &ConfigError{Key: "journal.dsn", Reason: "required when journal.driver is set"}
	}
	return nil
}

func validURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConfigError{Key: key, Reason: "must be an absolute http(s) URL"}
	}
	return nil
}
