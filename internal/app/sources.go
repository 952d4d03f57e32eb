package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"

	"github.com/nhle/sms-relay/internal/credential"
	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/publish"
	"github.com/nhle/sms-relay/internal/publish/bluesky"
	"github.com/nhle/sms-relay/internal/publish/mastodon"
	"github.com/nhle/sms-relay/internal/source"
	"github.com/nhle/sms-relay/internal/source/email"
	"github.com/nhle/sms-relay/internal/source/gmail"
)

// secrets resolves credentials, opening the keyring only when a value
// is not already present in the configuration.
type secrets struct {
	open  func() (*credential.Store, error)
	store *credential.Store
}

func (s *secrets) keyring() (*credential.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	store, err := s.open()
	if err != nil {
		return nil, err
	}
	s.store = store
	return store, nil
}

// resolve returns value, or the keyring entry for key when value is
// empty. A secret found in neither place is a ConfigError.
func (s *secrets) resolve(value, key, configKey, hint string) (string, error) {
	if value != "" {
		return value, nil
	}

	store, err := s.keyring()
	if err != nil {
		return "", &model.ConfigError{
			Key:     configKey,
			Message: fmt.Sprintf("not set and keyring unavailable (%v); %s", err, hint),
		}
	}

	secret, err := store.Resolve("", key)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", &model.ConfigError{Key: configKey, Message: "not set; " + hint}
	}
	return secret, nil
}

// newMailbox builds the configured mailbox backend.
func newMailbox(
	ctx context.Context,
	cfg *model.AppConfig,
	sec *secrets,
	logger *slog.Logger,
) (source.Mailbox, error) {
	switch cfg.Mailbox.Backend {
	case model.MailboxIMAP:
		password, err := sec.resolve(
			cfg.IMAP.Password, credential.KeyIMAPPassword,
			"imap.password", "run `sms-relay auth imap`",
		)
		if err != nil {
			return nil, err
		}
		return email.NewAdapter(
			cfg.IMAP.Host, cfg.IMAP.Port,
			cfg.IMAP.Username, password, cfg.IMAP.TLS,
		), nil

	case model.MailboxGmail:
		oauthCfg, err := gmail.LoadOAuthConfig(
			cfg.Gmail.CredentialsFile, gmail.Scopes(cfg.Mailbox.MarkRead)...,
		)
		if errors.Is(err, os.ErrNotExist) {
			return nil, &model.ConfigError{
				Key:     "gmail.credentials_file",
				Message: fmt.Sprintf("%s not found", cfg.Gmail.CredentialsFile),
			}
		}
		if err != nil {
			return nil, err
		}

		store, err := sec.keyring()
		if err != nil {
			return nil, err
		}
		token, err := gmail.LoadToken(store)
		if err != nil {
			return nil, err
		}

		return gmail.NewAdapter(ctx, oauthCfg, token, func(tok *oauth2.Token) error {
			logger.Debug("gmail token refreshed")
			return gmail.SaveToken(store, tok)
		})

	default:
		return nil, &model.ConfigError{
			Key:     "mailbox.backend",
			Message: fmt.Sprintf("unknown backend %q", cfg.Mailbox.Backend),
		}
	}
}

// newPoster builds the configured posting backend.
func newPoster(cfg *model.AppConfig, sec *secrets) (publish.Poster, error) {
	switch cfg.Poster.Backend {
	case model.PosterMastodon:
		token, err := sec.resolve(
			cfg.Mastodon.AccessToken, credential.KeyMastodonToken,
			"mastodon.access_token",
			"set MASTODON_ACCESS_TOKEN or run `sms-relay auth mastodon`",
		)
		if err != nil {
			return nil, err
		}
		return mastodon.New(cfg.Mastodon.InstanceURL, token, cfg.Mastodon.Visibility), nil

	case model.PosterBluesky:
		password, err := sec.resolve(
			cfg.Bluesky.AppPassword, credential.KeyBlueskyAppPassword,
			"bluesky.app_password", "run `sms-relay auth bluesky`",
		)
		if err != nil {
			return nil, err
		}
		return bluesky.New(cfg.Bluesky.PDS, cfg.Bluesky.Handle, password), nil

	default:
		return nil, &model.ConfigError{
			Key:     "poster.backend",
			Message: fmt.Sprintf("unknown backend %q", cfg.Poster.Backend),
		}
	}
}
