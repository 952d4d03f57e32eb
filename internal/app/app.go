// Package app wires the relay together from its configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nhle/sms-relay/internal/confirm"
	"github.com/nhle/sms-relay/internal/credential"
	"github.com/nhle/sms-relay/internal/gateway"
	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/publish"
	"github.com/nhle/sms-relay/internal/relay"
	"github.com/nhle/sms-relay/internal/source"
	"github.com/nhle/sms-relay/internal/store"
	"github.com/nhle/sms-relay/internal/sync"
)

// validateTimeout bounds the startup credential checks.
const validateTimeout = 30 * time.Second

// Options carries process-level collaborators into the App.
type Options struct {
	Logger *slog.Logger

	// In and Out are the operator's terminal for confirmation prompts.
	In  io.Reader
	Out io.Writer

	// OpenCredentials opens the keyring. Defaults to credential.Open.
	OpenCredentials func() (*credential.Store, error)

	// Mailbox and Poster replace the configured backends when set.
	Mailbox source.Mailbox
	Poster  publish.Poster
}

// App is a configured, authenticated relay ready to poll.
type App struct {
	cfg      *model.AppConfig
	logger   *slog.Logger
	pipeline *relay.Pipeline
	poller   *sync.Poller
	mailbox  source.Mailbox
	poster   publish.Poster
	ledger   store.Ledger
}

// New validates cfg, opens the ledger, builds and authenticates the
// mailbox and poster, and assembles the pipeline. Configuration problems
// return *model.ConfigError; rejected credentials return an AuthError
// from the source or publish package.
func New(ctx context.Context, cfg *model.AppConfig, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.OpenCredentials == nil {
		opts.OpenCredentials = credential.Open
	}
	logger := opts.Logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	phone, ok := gateway.NormalizePhone(cfg.SourcePhone)
	if !ok {
		return nil, &model.ConfigError{
			Key:     "source_phone",
			Message: fmt.Sprintf("%q is not a 10-digit US number", cfg.SourcePhone),
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sec := &secrets{open: opts.OpenCredentials}

	mailbox := opts.Mailbox
	if mailbox == nil {
		if mailbox, err = newMailbox(ctx, cfg, sec, logger); err != nil {
			return nil, err
		}
	}

	poster := opts.Poster
	if poster == nil {
		if poster, err = newPoster(cfg, sec); err != nil {
			return nil, err
		}
	}

	if err := verify(ctx, logger, mailbox, poster); err != nil {
		return nil, err
	}

	ledger, err := store.Open(cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	confirmer := newConfirmer(cfg.Confirm, opts.In, opts.Out, logger)

	pipeline := relay.New(mailbox, poster, ledger, confirmer, logger, relay.Options{
		SourcePhone:        phone,
		SenderDomain:       cfg.Mailbox.SenderDomain,
		Lookback:           cfg.Lookback(),
		MaxResults:         cfg.Mailbox.MaxResults,
		MarkRead:           cfg.Mailbox.MarkRead,
		MaxPublishAttempts: cfg.MaxPublishAttempts,
		Location:           loc,
	})

	a := &App{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		poller:   sync.New(pipeline, cfg.PollInterval(), logger),
		mailbox:  mailbox,
		poster:   poster,
		ledger:   ledger,
	}
	a.logBanner(phone)

	return a, nil
}

// verify checks both sets of credentials. Rejected credentials are
// fatal; other failures (the network being down) are logged and left
// for the poll loop to retry.
func verify(
	ctx context.Context,
	logger *slog.Logger,
	mailbox source.Mailbox,
	poster publish.Poster,
) error {
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	account, err := mailbox.ValidateConnection(vctx)
	switch {
	case source.IsAuthError(err):
		return err
	case err != nil:
		logger.Warn("mailbox check failed", "mailbox", mailbox.Type(), "error", err)
	default:
		logger.Info("mailbox authenticated", "mailbox", mailbox.Type(), "account", account)
	}

	handle, err := poster.Verify(vctx)
	switch {
	case publish.IsAuthError(err):
		return err
	case err != nil:
		logger.Warn("poster check failed", "poster", poster.Name(), "error", err)
	default:
		logger.Info("poster authenticated", "poster", poster.Name(), "account", handle)
	}

	return nil
}

func newConfirmer(
	mode string, in io.Reader, out io.Writer, logger *slog.Logger,
) confirm.Confirmer {
	switch mode {
	case model.ConfirmAuto:
		return confirm.Auto{}
	case model.ConfirmNever:
		return confirm.Never{OnPreview: func(p confirm.Preview) {
			logger.Info("would publish", "message_id", p.MessageID, "text", p.Text)
		}}
	default:
		return confirm.NewPrompt(in, out)
	}
}

func (a *App) logBanner(phone string) {
	a.logger.Info("sms relay ready",
		"source_phone", phone,
		"mailbox", a.mailbox.Type(),
		"poster", a.poster.Name(),
		"poll_interval", a.cfg.PollInterval(),
		"confirm", a.cfg.Confirm,
		"ledger", a.cfg.Ledger.Path,
		"ledger_entries", a.ledger.Len(),
	)
	a.logger.Info("mailbox query window",
		"sender_domain", a.cfg.Mailbox.SenderDomain,
		"lookback", a.cfg.Lookback(),
		"max_publish_attempts", a.cfg.MaxPublishAttempts,
	)
}

// Run polls until ctx is cancelled, or runs one cycle when once is set.
func (a *App) Run(ctx context.Context, once bool) error {
	var err error
	if once {
		err = a.poller.Once(ctx)
	} else {
		err = a.poller.Run(ctx)
	}

	st := a.poller.Status()
	attrs := []any{"cycles", st.Cycles, "ledger_entries", a.ledger.Len()}
	if !st.LastSync.IsZero() {
		attrs = append(attrs, "last_sync", st.LastSync.Format(time.RFC3339))
	}
	if st.Error != nil {
		attrs = append(attrs, "last_error", st.Error)
	}
	a.logger.Info("relay stopped", attrs...)

	return err
}

// Close releases the ledger.
func (a *App) Close() error {
	return a.pipeline.Close()
}
