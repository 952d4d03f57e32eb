// Package relay turns gateway emails into published posts.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/sms-relay/internal/confirm"
	"github.com/nhle/sms-relay/internal/gateway"
	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/publish"
	"github.com/nhle/sms-relay/internal/source"
	"github.com/nhle/sms-relay/internal/store"
)

// DefaultCallTimeout bounds each mailbox or posting call.
const DefaultCallTimeout = 30 * time.Second

// ErrLedger wraps failures to persist a disposition. The pipeline stops
// when it cannot record, since it could no longer rule out a repost.
var ErrLedger = errors.New("ledger write failed")

// Options configures a Pipeline.
type Options struct {
	// SourcePhone is the 10-digit number whose texts are relayed.
	SourcePhone string

	// SenderDomain is the gateway's mail domain.
	SenderDomain string

	// Lookback is the recency window for the mailbox query.
	Lookback time.Duration

	// MaxResults caps how many candidates one cycle processes, oldest
	// first. The rest wait for the next cycle. It is also the mailbox
	// page size.
	MaxResults int

	// MarkRead flags each disposed message read in the mailbox.
	MarkRead bool

	// MaxPublishAttempts ledgers a message as failed after this many
	// consecutive publish failures. Zero retries forever.
	MaxPublishAttempts int

	// Location is used for the delayed-message timestamp.
	Location *time.Location

	// CallTimeout bounds each network call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// CycleReport summarizes one fetch cycle.
type CycleReport struct {
	ID         string
	Listed     int
	Candidates int
	Outcomes   map[model.Outcome]int

	// PublishFailures counts publish errors left unledgered for retry.
	PublishFailures int

	// Deferred counts messages whose fetch failed this cycle.
	Deferred int

	// Backlog counts candidates left for later cycles by MaxResults.
	Backlog int

	// DryRun counts previews skipped without publishing.
	DryRun int

	// FetchErr is set when listing the mailbox failed.
	FetchErr error
}

// Pipeline owns the process state of the relay: the mailbox, the
// poster, the ledger, and the confirmation policy.
type Pipeline struct {
	mailbox   source.Mailbox
	poster    publish.Poster
	ledger    store.Ledger
	confirmer confirm.Confirmer
	logger    *slog.Logger
	opts      Options

	attempts  map[string]int
	previewed map[string]struct{}
}

// New creates a Pipeline.
func New(
	mailbox source.Mailbox,
	poster publish.Poster,
	ledger store.Ledger,
	confirmer confirm.Confirmer,
	logger *slog.Logger,
	opts Options,
) *Pipeline {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		mailbox:   mailbox,
		poster:    poster,
		ledger:    ledger,
		confirmer: confirmer,
		logger:    logger,
		opts:      opts,
		attempts:  make(map[string]int),
		previewed: make(map[string]struct{}),
	}
}

// Close releases the ledger.
func (p *Pipeline) Close() error {
	return p.ledger.Close()
}

// RunCycle lists the mailbox once and disposes of every new candidate,
// oldest first. It returns an error only when the relay must stop:
// confirm.ErrAborted, context cancellation, or ErrLedger.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{
		ID:       uuid.NewString(),
		Outcomes: make(map[model.Outcome]int),
	}
	log := p.logger.With("cycle", report.ID)

	ids, err := p.list(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.FetchErr = err
		log.Error("listing mailbox failed", "error", err)
		return report, nil
	}
	report.Listed = len(ids)

	var candidates []string
	for _, id := range ids {
		if !p.ledger.Contains(id) {
			candidates = append(candidates, id)
		}
	}
	report.Candidates = len(candidates)

	// The mailbox lists newest first, so the oldest candidates are at
	// the end.
	start := 0
	if p.opts.MaxResults > 0 && len(candidates) > p.opts.MaxResults {
		start = len(candidates) - p.opts.MaxResults
		report.Backlog = start
	}
	for i := len(candidates) - 1; i >= start; i-- {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := p.process(ctx, log, candidates[i], &report); err != nil {
			return report, err
		}
	}

	if report.Candidates > 0 || report.FetchErr != nil {
		log.Info("cycle complete",
			"listed", report.Listed,
			"candidates", report.Candidates,
			"published", report.Outcomes[model.OutcomePublished],
			"publish_failures", report.PublishFailures,
			"deferred", report.Deferred,
			"backlog", report.Backlog,
		)
	} else {
		log.Debug("no new messages", "listed", report.Listed)
	}

	return report, nil
}

func (p *Pipeline) list(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	q := source.Query{
		SenderDomain: p.opts.SenderDomain,
		PageSize:     p.opts.MaxResults,
	}
	if p.opts.Lookback > 0 {
		q.Since = p.opts.Now().Add(-p.opts.Lookback)
	}

	return p.mailbox.List(callCtx, q)
}

func (p *Pipeline) process(
	ctx context.Context,
	log *slog.Logger,
	id string,
	report *CycleReport,
) error {
	log = log.With("message_id", id)

	if _, seen := p.previewed[id]; seen {
		report.DryRun++
		return nil
	}

	msg, err := p.get(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Deferred++
		log.Warn("fetching message failed, will retry next cycle", "error", err)
		return nil
	}

	phone, ok := gateway.ParsePhone(msg.From)
	if !ok || phone != p.opts.SourcePhone {
		log.Info("skipping message from other sender", "from", msg.From, "phone", phone)
		return p.dispose(ctx, log, id, model.OutcomeWrongSender, "", report)
	}

	raw, ok := DecodeBody(msg.Payload)
	if !ok {
		log.Warn("message body is missing or undecodable")
		return p.dispose(ctx, log, id, model.OutcomeUndecodable, "", report)
	}

	body := gateway.NormalizeBody(raw)
	if body == "" {
		log.Warn("message body is empty after cleanup")
		return p.dispose(ctx, log, id, model.OutcomeUndecodable, "", report)
	}
	if gateway.IsGenesis(body) {
		log.Info("skipping gateway welcome message")
		return p.dispose(ctx, log, id, model.OutcomeGenesis, "", report)
	}

	now := p.opts.Now()
	sentAt, err := gateway.ParseDate(msg.Date)
	if err != nil {
		log.Warn("unparseable date header, posting without timestamp",
			"date", msg.Date, "error", err)
		sentAt = time.Time{}
	}
	text := gateway.PostText(body, sentAt, now, p.opts.Location)

	preview := confirm.Preview{
		MessageID: id,
		Phone:     phone,
		SentAt:    sentAt.In(p.opts.Location),
		Stale:     gateway.IsStale(sentAt, now),
		Text:      text,
		Poster:    p.poster.Name(),
	}

	approved, err := p.confirmer.Confirm(ctx, preview)
	switch {
	case errors.Is(err, confirm.ErrDryRun):
		p.previewed[id] = struct{}{}
		report.DryRun++
		log.Info("dry run, not publishing", "text", text)
		return nil
	case errors.Is(err, confirm.ErrAborted):
		return err
	case err != nil:
		return fmt.Errorf("confirming message %s: %w", id, err)
	case !approved:
		log.Info("operator declined")
		return p.dispose(ctx, log, id, model.OutcomeDeclined, "", report)
	}

	post, err := p.publish(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.publishFailed(ctx, log, id, err, report)
	}

	delete(p.attempts, id)
	log.Info("published", "post_id", post.ID, "url", post.URL)
	return p.dispose(ctx, log, id, model.OutcomePublished, post.URL, report)
}

func (p *Pipeline) get(ctx context.Context, id string) (*model.InboundMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	return p.mailbox.Get(callCtx, id)
}

func (p *Pipeline) publish(ctx context.Context, text string) (*model.PublishedPost, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	return p.poster.Publish(callCtx, text)
}

func (p *Pipeline) publishFailed(
	ctx context.Context,
	log *slog.Logger,
	id string,
	cause error,
	report *CycleReport,
) error {
	p.attempts[id]++
	attempts := p.attempts[id]

	if p.opts.MaxPublishAttempts > 0 && attempts >= p.opts.MaxPublishAttempts {
		log.Error("publish failed, giving up",
			"attempts", attempts, "error", cause)
		delete(p.attempts, id)
		return p.dispose(ctx, log, id, model.OutcomeFailed, "", report)
	}

	report.PublishFailures++
	log.Error("publish failed, will retry next cycle",
		"attempts", attempts, "error", cause)
	return nil
}

// dispose records the terminal outcome for id and, when configured,
// marks the message read.
func (p *Pipeline) dispose(
	ctx context.Context,
	log *slog.Logger,
	id string,
	outcome model.Outcome,
	postRef string,
	report *CycleReport,
) error {
	entry := model.LedgerEntry{
		MessageID:  id,
		Outcome:    outcome,
		PostRef:    postRef,
		RecordedAt: p.opts.Now(),
	}
	// A disposition that happened must be recorded even while shutting down.
	if err := p.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	report.Outcomes[outcome]++

	if p.opts.MarkRead {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
		defer cancel()

		if err := p.mailbox.MarkRead(callCtx, id); err != nil {
			log.Warn("marking message read failed", "error", err)
		}
	}

	log.Debug("recorded", "outcome", outcome)
	return nil
}
