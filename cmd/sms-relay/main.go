// Command sms-relay publishes forwarded Google Voice texts to a social
// account.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nhle/sms-relay/internal/app"
	"github.com/nhle/sms-relay/internal/credential"
	"github.com/nhle/sms-relay/internal/model"
)

const usage = `Usage: sms-relay [flags] [command]

Commands:
  run              poll the mailbox and publish (default)
  auth <target>    store credentials for gmail, mastodon, bluesky, or imap
                   (--remove deletes them)
  init             write a config file interactively
  history          list ledger entries (sqlite ledger only)

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	flags := pflag.NewFlagSet("sms-relay", pflag.ContinueOnError)
	configPath := flags.String("config", model.DefaultConfigPath(), "config file path")
	once := flags.Bool("once", false, "run a single fetch cycle and exit")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("confirm", model.ConfirmPrompt, "confirmation mode: prompt, auto, or never")
	outcome := flags.String("outcome", "", "history: only show this outcome")
	limit := flags.Int("limit", 50, "history: maximum entries to show")
	remove := flags.Bool("remove", false, "auth: delete the stored credential instead")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := model.LoadConfig(*configPath, flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "run"
	if flags.NArg() > 0 {
		command = flags.Arg(0)
	}

	switch command {
	case "run":
		return relay(ctx, cfg, logger, *once)

	case "auth":
		if flags.NArg() < 2 {
			return fmt.Errorf("auth needs a target: gmail, mastodon, bluesky, or imap")
		}
		creds, err := credential.Open()
		if err != nil {
			return err
		}
		if *remove {
			return app.Revoke(flags.Arg(1), creds, os.Stdout)
		}
		return app.Authorize(ctx, cfg, flags.Arg(1), creds, os.Stdout)

	case "init":
		if err := app.Init(ctx, *configPath, cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", *configPath)
		return nil

	case "history":
		return app.History(ctx, cfg, *outcome, *limit, os.Stdout)

	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func relay(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger, once bool) error {
	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Run(ctx, once); err != nil {
		return err
	}

	if ctx.Err() != nil {
		logger.Info("interrupted, shutting down")
	}
	return nil
}
