package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// clearEnv unsets every variable the loader reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, name := range envs {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "SMS_RELAY_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.PollIntervalSec != 60 {
		t.Errorf("PollIntervalSec = %d, want 60", cfg.PollIntervalSec)
	}
	if cfg.Confirm != ConfirmPrompt {
		t.Errorf("Confirm = %q, want prompt", cfg.Confirm)
	}
	if cfg.Mailbox.SenderDomain != "txt.voice.google.com" || cfg.Mailbox.LookbackDays != 7 {
		t.Errorf("Mailbox = %+v", cfg.Mailbox)
	}
	if cfg.Ledger.Backend != LedgerFile || cfg.Ledger.Path != ".processed_messages.txt" {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if cfg.MaxPublishAttempts != 5 {
		t.Errorf("MaxPublishAttempts = %d, want 5", cfg.MaxPublishAttempts)
	}
}

func TestDefaultAppConfigMatchesLoadedDefaults(t *testing.T) {
	clearEnv(t)

	loaded, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	def := DefaultAppConfig()
	def.Ledger.Path = loaded.Ledger.Path
	if *def != *loaded {
		t.Errorf("DefaultAppConfig = %+v\nLoadConfig defaults = %+v", def, loaded)
	}

	// Each call returns a fresh value.
	def.Mailbox.MaxResults = 1
	if DefaultAppConfig().Mailbox.MaxResults != 25 {
		t.Error("DefaultAppConfig shares state between calls")
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `source_phone: "+1 (715) 200-9057"
poll_interval_sec: 30
timezone: America/Chicago
poster:
  backend: bluesky
bluesky:
  handle: relay.bsky.social
ledger:
  backend: sqlite
mailbox:
  mark_read: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.SourcePhone != "+1 (715) 200-9057" {
		t.Errorf("SourcePhone = %q", cfg.SourcePhone)
	}
	if cfg.PollInterval().Seconds() != 30 {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
	if cfg.Poster.Backend != PosterBluesky || cfg.Bluesky.Handle != "relay.bsky.social" {
		t.Errorf("poster = %+v / %+v", cfg.Poster, cfg.Bluesky)
	}
	if cfg.Bluesky.PDS != "https://bsky.social" {
		t.Errorf("Bluesky.PDS default lost: %q", cfg.Bluesky.PDS)
	}
	if cfg.Ledger.Path != "sms-relay.db" {
		t.Errorf("sqlite ledger path = %q", cfg.Ledger.Path)
	}
	if !cfg.Mailbox.MarkRead || cfg.Mailbox.Backend != MailboxGmail {
		t.Errorf("Mailbox = %+v", cfg.Mailbox)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigHonorsLegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOURCE_PHONE_NUMBER", "7152009057")
	t.Setenv("MASTODON_INSTANCE_URL", "https://mastodon.example")
	t.Setenv("MASTODON_ACCESS_TOKEN", "tok")
	t.Setenv("POLL_INTERVAL_SECONDS", "90")
	t.Setenv("STATE_FILE", "/var/lib/relay/state.txt")

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.SourcePhone != "7152009057" {
		t.Errorf("SourcePhone = %q", cfg.SourcePhone)
	}
	if cfg.Mastodon.InstanceURL != "https://mastodon.example" || cfg.Mastodon.AccessToken != "tok" {
		t.Errorf("Mastodon = %+v", cfg.Mastodon)
	}
	if cfg.PollIntervalSec != 90 {
		t.Errorf("PollIntervalSec = %d", cfg.PollIntervalSec)
	}
	if cfg.Ledger.Path != "/var/lib/relay/state.txt" {
		t.Errorf("Ledger.Path = %q", cfg.Ledger.Path)
	}
}

func TestLoadConfigPrefixedEnvWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMS_RELAY_SOURCE_PHONE", "6085550100")
	t.Setenv("SOURCE_PHONE_NUMBER", "7152009057")

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SourcePhone != "6085550100" {
		t.Errorf("SourcePhone = %q, want the prefixed variable", cfg.SourcePhone)
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	clearEnv(t)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("confirm", ConfirmPrompt, "")
	fs.Bool("debug", false, "")
	if err := fs.Parse([]string{"--confirm=auto", "--debug"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig("", fs)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Confirm != ConfirmAuto || !cfg.Debug {
		t.Errorf("Confirm = %q, Debug = %v", cfg.Confirm, cfg.Debug)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		cfg := DefaultAppConfig()
		cfg.SourcePhone = "7152009057"
		cfg.Mastodon.InstanceURL = "https://mastodon.example"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		key    string
	}{
		{"missing phone", func(c *AppConfig) { c.SourcePhone = " " }, "source_phone"},
		{"zero interval", func(c *AppConfig) { c.PollIntervalSec = 0 }, "poll_interval_sec"},
		{"negative attempts", func(c *AppConfig) { c.MaxPublishAttempts = -1 }, "max_publish_attempts"},
		{"bad confirm", func(c *AppConfig) { c.Confirm = "maybe" }, "confirm"},
		{"missing instance", func(c *AppConfig) { c.Mastodon.InstanceURL = "" }, "mastodon.instance_url"},
		{"bluesky without handle", func(c *AppConfig) { c.Poster.Backend = PosterBluesky }, "bluesky.handle"},
		{"imap without host", func(c *AppConfig) { c.Mailbox.Backend = MailboxIMAP }, "imap"},
		{"unknown ledger", func(c *AppConfig) { c.Ledger.Backend = "redis" }, "ledger.backend"},
		{"bad timezone", func(c *AppConfig) { c.Timezone = "Mars/Olympus" }, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !IsConfigError(err) {
				t.Fatalf("Validate = %v, want ConfigError", err)
			}
			if cfgErr := err.(*ConfigError); cfgErr.Key != tt.key {
				t.Errorf("Key = %q, want %q", cfgErr.Key, tt.key)
			}
		})
	}
}

func TestSaveConfigOmitsSecrets(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultAppConfig()
	cfg.SourcePhone = "7152009057"
	cfg.Mastodon.InstanceURL = "https://mastodon.example"
	cfg.Mastodon.AccessToken = "super-secret"
	cfg.Ledger.Path = "ledger.txt"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Error("saved config contains the access token")
	}

	loaded, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.SourcePhone != "7152009057" || loaded.Mastodon.InstanceURL != "https://mastodon.example" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if cfg.Mastodon.AccessToken != "super-secret" {
		t.Error("SaveConfig must not modify its argument")
	}
}
