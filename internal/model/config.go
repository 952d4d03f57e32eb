package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigError reports a missing or invalid setting. It is fatal at startup.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %s", e.Key, e.Message)
}

// IsConfigError reports whether err (or any error in its chain) is a
// ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Mailbox backends.
const (
	MailboxGmail = "gmail"
	MailboxIMAP  = "imap"
)

// Poster backends.
const (
	PosterMastodon = "mastodon"
	PosterBluesky  = "bluesky"
)

// Ledger backends.
const (
	LedgerFile   = "file"
	LedgerSQLite = "sqlite"
)

// Confirmation modes.
const (
	ConfirmPrompt = "prompt"
	ConfirmAuto   = "auto"
	ConfirmNever  = "never"
)

// MailboxConfig controls which messages are pulled from the mailbox.
type MailboxConfig struct {
	// Backend selects the mailbox implementation ("gmail" or "imap").
	Backend string `mapstructure:"backend" yaml:"backend"`

	// SenderDomain restricts the query to the gateway's sending domain.
	SenderDomain string `mapstructure:"sender_domain" yaml:"sender_domain"`

	// LookbackDays bounds the query to recently received messages.
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`

	// MaxResults caps how many messages one cycle processes, oldest first,
	// and is the page size for mailbox queries.
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`

	// MarkRead marks each message read once it has been disposed of.
	MarkRead bool `mapstructure:"mark_read" yaml:"mark_read"`
}

// GmailConfig holds the Gmail API settings.
type GmailConfig struct {
	// CredentialsFile is the OAuth client secret JSON downloaded from the
	// Google Cloud console.
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// IMAPConfig holds the IMAP server settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// PosterConfig selects the posting backend.
type PosterConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// MastodonConfig holds the Mastodon instance and credential.
type MastodonConfig struct {
	InstanceURL string `mapstructure:"instance_url" yaml:"instance_url"`
	AccessToken string `mapstructure:"access_token" yaml:"access_token,omitempty"`
	Visibility  string `mapstructure:"visibility" yaml:"visibility"`
}

// BlueskyConfig holds the Bluesky PDS and app password.
type BlueskyConfig struct {
	PDS         string `mapstructure:"pds" yaml:"pds"`
	Handle      string `mapstructure:"handle" yaml:"handle"`
	AppPassword string `mapstructure:"app_password" yaml:"app_password,omitempty"`
}

// LedgerConfig selects where handled message ids are persisted.
type LedgerConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level relay configuration.
type AppConfig struct {
	// SourcePhone is the only sender whose messages are published.
	SourcePhone string `mapstructure:"source_phone" yaml:"source_phone"`

	// PollIntervalSec is the pause between fetch cycles, in seconds.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// Timezone is used to render the timestamp prefix on stale messages.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	Debug bool `mapstructure:"debug" yaml:"debug"`

	// Confirm is one of "prompt", "auto", or "never".
	Confirm string `mapstructure:"confirm" yaml:"confirm"`

	// MaxPublishAttempts ledgers a message as failed after this many
	// consecutive publish errors. Zero retries forever.
	MaxPublishAttempts int `mapstructure:"max_publish_attempts" yaml:"max_publish_attempts"`

	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	Gmail    GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Poster   PosterConfig   `mapstructure:"poster" yaml:"poster"`
	Mastodon MastodonConfig `mapstructure:"mastodon" yaml:"mastodon"`
	Bluesky  BlueskyConfig  `mapstructure:"bluesky" yaml:"bluesky"`
	Ledger   LedgerConfig   `mapstructure:"ledger" yaml:"ledger"`
}

// PollInterval returns the poll interval as a duration.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// Lookback returns the mailbox recency window as a duration.
func (c *AppConfig) Lookback() time.Duration {
	return time.Duration(c.Mailbox.LookbackDays) * 24 * time.Hour
}

// Location resolves the configured timezone, defaulting to time.Local.
func (c *AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &ConfigError{Key: "timezone", Message: err.Error()}
	}
	return loc, nil
}

// Validate checks the settings that do not depend on external state.
// Secrets are checked after keyring lookup, by the caller.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.SourcePhone) == "" {
		return &ConfigError{Key: "source_phone", Message: "SOURCE_PHONE_NUMBER is required"}
	}
	if c.PollIntervalSec <= 0 {
		return &ConfigError{
			Key:     "poll_interval_sec",
			Message: fmt.Sprintf("must be positive, got %d", c.PollIntervalSec),
		}
	}
	if c.MaxPublishAttempts < 0 {
		return &ConfigError{Key: "max_publish_attempts", Message: "must not be negative"}
	}

	switch c.Confirm {
	case ConfirmPrompt, ConfirmAuto, ConfirmNever:
	default:
		return &ConfigError{Key: "confirm", Message: fmt.Sprintf("unknown mode %q", c.Confirm)}
	}

	switch c.Mailbox.Backend {
	case MailboxGmail:
		if c.Gmail.CredentialsFile == "" {
			return &ConfigError{Key: "gmail.credentials_file", Message: "required for the gmail backend"}
		}
	case MailboxIMAP:
		if c.IMAP.Host == "" || c.IMAP.Username == "" {
			return &ConfigError{Key: "imap", Message: "host and username are required for the imap backend"}
		}
	default:
		return &ConfigError{Key: "mailbox.backend", Message: fmt.Sprintf("unknown backend %q", c.Mailbox.Backend)}
	}
	if c.Mailbox.SenderDomain == "" {
		return &ConfigError{Key: "mailbox.sender_domain", Message: "required"}
	}
	if c.Mailbox.LookbackDays <= 0 {
		return &ConfigError{Key: "mailbox.lookback_days", Message: "must be positive"}
	}

	switch c.Poster.Backend {
	case PosterMastodon:
		if c.Mastodon.InstanceURL == "" {
			return &ConfigError{Key: "mastodon.instance_url", Message: "MASTODON_INSTANCE_URL is required"}
		}
	case PosterBluesky:
		if c.Bluesky.Handle == "" {
			return &ConfigError{Key: "bluesky.handle", Message: "required for the bluesky poster"}
		}
	default:
		return &ConfigError{Key: "poster.backend", Message: fmt.Sprintf("unknown backend %q", c.Poster.Backend)}
	}

	switch c.Ledger.Backend {
	case LedgerFile, LedgerSQLite:
	default:
		return &ConfigError{Key: "ledger.backend", Message: fmt.Sprintf("unknown backend %q", c.Ledger.Backend)}
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/sms-relay/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "sms-relay", "config.yaml")
}

// DefaultAppConfig returns the configuration used when nothing is set.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		PollIntervalSec:    60,
		Confirm:            ConfirmPrompt,
		MaxPublishAttempts: 5,
		Mailbox: MailboxConfig{
			Backend:      MailboxGmail,
			SenderDomain: "txt.voice.google.com",
			LookbackDays: 7,
			MaxResults:   25,
		},
		Gmail: GmailConfig{
			CredentialsFile: "credentials.json",
		},
		IMAP: IMAPConfig{
			Port: "993",
			TLS:  true,
		},
		Poster: PosterConfig{
			Backend: PosterMastodon,
		},
		Mastodon: MastodonConfig{
			Visibility: "public",
		},
		Bluesky: BlueskyConfig{
			PDS: "https://bsky.social",
		},
		Ledger: LedgerConfig{
			Backend: LedgerFile,
		},
	}
}

// envBindings maps config keys to the environment variables that may set
// them, checked in order. The unprefixed names are the ones the relay has
// always read from .env.
var envBindings = map[string][]string{
	"source_phone":          {"SMS_RELAY_SOURCE_PHONE", "SOURCE_PHONE_NUMBER"},
	"poll_interval_sec":     {"SMS_RELAY_POLL_INTERVAL_SEC", "POLL_INTERVAL_SECONDS"},
	"mastodon.instance_url": {"SMS_RELAY_MASTODON_INSTANCE_URL", "MASTODON_INSTANCE_URL"},
	"mastodon.access_token": {"SMS_RELAY_MASTODON_ACCESS_TOKEN", "MASTODON_ACCESS_TOKEN"},
	"ledger.path":           {"SMS_RELAY_LEDGER_PATH", "STATE_FILE"},
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// overlaid with environment variables and any flags in fs that were set.
// If the file does not exist, defaults and environment are used.
func LoadConfig(path string, fs *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values (and so
	// AutomaticEnv can see every key during Unmarshal).
	def := DefaultAppConfig()
	v.SetDefault("source_phone", "")
	v.SetDefault("poll_interval_sec", def.PollIntervalSec)
	v.SetDefault("timezone", "")
	v.SetDefault("debug", false)
	v.SetDefault("confirm", def.Confirm)
	v.SetDefault("max_publish_attempts", def.MaxPublishAttempts)
	v.SetDefault("mailbox.backend", def.Mailbox.Backend)
	v.SetDefault("mailbox.sender_domain", def.Mailbox.SenderDomain)
	v.SetDefault("mailbox.lookback_days", def.Mailbox.LookbackDays)
	v.SetDefault("mailbox.max_results", def.Mailbox.MaxResults)
	v.SetDefault("mailbox.mark_read", false)
	v.SetDefault("gmail.credentials_file", def.Gmail.CredentialsFile)
	v.SetDefault("imap.host", "")
	v.SetDefault("imap.port", def.IMAP.Port)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.tls", def.IMAP.TLS)
	v.SetDefault("poster.backend", def.Poster.Backend)
	v.SetDefault("mastodon.instance_url", "")
	v.SetDefault("mastodon.access_token", "")
	v.SetDefault("mastodon.visibility", def.Mastodon.Visibility)
	v.SetDefault("bluesky.pds", def.Bluesky.PDS)
	v.SetDefault("bluesky.handle", "")
	v.SetDefault("bluesky.app_password", "")
	v.SetDefault("ledger.backend", def.Ledger.Backend)
	v.SetDefault("ledger.path", "")

	v.SetEnvPrefix("SMS_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if fs != nil {
		for key, name := range map[string]string{
			"debug":   "debug",
			"confirm": "confirm",
		} {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := def
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// The ledger path default depends on the backend.
	if cfg.Ledger.Path == "" {
		switch cfg.Ledger.Backend {
		case LedgerSQLite:
			cfg.Ledger.Path = "sms-relay.db"
		default:
			cfg.Ledger.Path = ".processed_messages.txt"
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Secrets are not written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	out := *cfg
	out.IMAP.Password = ""
	out.Mastodon.AccessToken = ""
	out.Bluesky.AppPassword = ""

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("source_phone", out.SourcePhone)
	v.Set("poll_interval_sec", out.PollIntervalSec)
	v.Set("timezone", out.Timezone)
	v.Set("confirm", out.Confirm)
	v.Set("max_publish_attempts", out.MaxPublishAttempts)
	v.Set("mailbox", out.Mailbox)
	v.Set("gmail", out.Gmail)
	v.Set("imap", out.IMAP)
	v.Set("poster", out.Poster)
	v.Set("mastodon", out.Mastodon)
	v.Set("bluesky", out.Bluesky)
	v.Set("ledger", out.Ledger)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
