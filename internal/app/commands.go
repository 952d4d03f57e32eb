package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/sms-relay/internal/credential"
	"github.com/nhle/sms-relay/internal/gateway"
	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/source/gmail"
	"github.com/nhle/sms-relay/internal/store"
	"github.com/nhle/sms-relay/internal/theme"
)

// Auth targets accepted by `sms-relay auth`.
const (
	AuthGmail    = "gmail"
	AuthMastodon = "mastodon"
	AuthBluesky  = "bluesky"
	AuthIMAP     = "imap"
)

// Authorize obtains a credential for target and stores it in the keyring.
func Authorize(
	ctx context.Context,
	cfg *model.AppConfig,
	target string,
	creds *credential.Store,
	out io.Writer,
) error {
	switch target {
	case AuthGmail:
		oauthCfg, err := gmail.LoadOAuthConfig(
			cfg.Gmail.CredentialsFile, gmail.Scopes(cfg.Mailbox.MarkRead)...,
		)
		if err != nil {
			return err
		}

		tok, err := gmail.Authorize(ctx, oauthCfg, func(authURL string) {
			fmt.Fprintln(out, theme.HeaderStyle.Render("Gmail authorization"))
			fmt.Fprintln(out, "Open this URL in a browser and grant access:")
			fmt.Fprintln(out, authURL)
		})
		if err != nil {
			return fmt.Errorf("authorizing gmail: %w", err)
		}
		if err := gmail.SaveToken(creds, tok); err != nil {
			return err
		}

	case AuthMastodon:
		if err := promptSecret(ctx, creds, credential.KeyMastodonToken,
			"Mastodon access token",
			"Create one under Preferences > Development with write:statuses scope.",
		); err != nil {
			return err
		}

	case AuthBluesky:
		if err := promptSecret(ctx, creds, credential.KeyBlueskyAppPassword,
			"Bluesky app password",
			"Create one under Settings > Privacy and security > App passwords.",
		); err != nil {
			return err
		}

	case AuthIMAP:
		if err := promptSecret(ctx, creds, credential.KeyIMAPPassword,
			"IMAP password",
			fmt.Sprintf("Password for %s on %s.", cfg.IMAP.Username, cfg.IMAP.Host),
		); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown auth target %q (want gmail, mastodon, bluesky, or imap)", target)
	}

	fmt.Fprintf(out, "Stored %s credential in the system keyring.\n", target)
	return nil
}

// Revoke removes the stored credential for target from the keyring.
func Revoke(target string, creds *credential.Store, out io.Writer) error {
	key, err := credentialKey(target)
	if err != nil {
		return err
	}
	err = creds.Delete(key)
	if errors.Is(err, credential.ErrNotFound) {
		fmt.Fprintf(out, "No %s credential is stored.\n", target)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Removed %s credential from the system keyring.\n", target)
	return nil
}

func credentialKey(target string) (string, error) {
	switch target {
	case AuthGmail:
		return credential.KeyGmailToken, nil
	case AuthMastodon:
		return credential.KeyMastodonToken, nil
	case AuthBluesky:
		return credential.KeyBlueskyAppPassword, nil
	case AuthIMAP:
		return credential.KeyIMAPPassword, nil
	default:
		return "", fmt.Errorf("unknown auth target %q (want gmail, mastodon, bluesky, or imap)", target)
	}
}

func promptSecret(
	ctx context.Context,
	creds *credential.Store,
	key, title, description string,
) error {
	var secret string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(description).
				EchoMode(huh.EchoModePassword).
				Value(&secret).
				Validate(validateRequired(title)),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("reading %s: %w", strings.ToLower(title), err)
	}

	return creds.Set(key, strings.TrimSpace(secret))
}

// Init asks for the essential settings and writes a config file.
func Init(ctx context.Context, path string, cfg *model.AppConfig) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Source phone number").
				Description("Only texts from this number are relayed").
				Placeholder("+1 (715) 200-9057").
				Value(&cfg.SourcePhone).
				Validate(validatePhone),
			huh.NewSelect[string]().
				Title("Mailbox").
				Options(
					huh.NewOption("Gmail API", model.MailboxGmail),
					huh.NewOption("IMAP", model.MailboxIMAP),
				).
				Value(&cfg.Mailbox.Backend),
			huh.NewSelect[string]().
				Title("Post to").
				Options(
					huh.NewOption("Mastodon", model.PosterMastodon),
					huh.NewOption("Bluesky", model.PosterBluesky),
				).
				Value(&cfg.Poster.Backend),
			huh.NewSelect[string]().
				Title("Confirm before posting").
				Options(
					huh.NewOption("Ask every time", model.ConfirmPrompt),
					huh.NewOption("Post automatically", model.ConfirmAuto),
					huh.NewOption("Dry run", model.ConfirmNever),
				).
				Value(&cfg.Confirm),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Mastodon instance URL").
				Placeholder("https://mastodon.social").
				Value(&cfg.Mastodon.InstanceURL).
				Validate(validateRequired("Instance URL")),
		).WithHideFunc(func() bool { return cfg.Poster.Backend != model.PosterMastodon }),
		huh.NewGroup(
			huh.NewInput().
				Title("Bluesky handle").
				Placeholder("you.bsky.social").
				Value(&cfg.Bluesky.Handle).
				Validate(validateRequired("Handle")),
		).WithHideFunc(func() bool { return cfg.Poster.Backend != model.PosterBluesky }),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Value(&cfg.IMAP.Host).
				Validate(validateRequired("Host")),
			huh.NewInput().
				Title("IMAP username").
				Value(&cfg.IMAP.Username).
				Validate(validateRequired("Username")),
		).WithHideFunc(func() bool { return cfg.Mailbox.Backend != model.MailboxIMAP }),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("running setup form: %w", err)
	}

	return model.SaveConfig(path, cfg)
}

// History prints ledger entries, newest first. Only the sqlite ledger
// keeps outcomes.
func History(
	ctx context.Context,
	cfg *model.AppConfig,
	outcome string,
	limit int,
	out io.Writer,
) error {
	if cfg.Ledger.Backend != model.LedgerSQLite {
		return &model.ConfigError{
			Key:     "ledger.backend",
			Message: "history needs the sqlite ledger; the file ledger stores ids only",
		}
	}

	s, err := store.NewSQLiteStore(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := store.EntryFilter{Limit: limit}
	if outcome != "" {
		o := model.Outcome(outcome)
		filter.Outcome = &o
	}

	entries, err := s.Entries(ctx, filter)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, theme.HelpStyle.Render("No entries."))
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %s  %s",
			e.RecordedAt.Local().Format("2006-01-02 15:04"),
			theme.OutcomeStyle(string(e.Outcome)).Render(fmt.Sprintf("%-12s", e.Outcome)),
			e.MessageID,
		)
		if e.PostRef != "" {
			line += "  " + e.PostRef
		}
		fmt.Fprintln(out, line)
	}

	return nil
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validatePhone(s string) error {
	if _, ok := gateway.NormalizePhone(s); !ok {
		return fmt.Errorf("enter a 10-digit number, optionally with +1")
	}
	return nil
}
