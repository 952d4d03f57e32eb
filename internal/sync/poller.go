package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/sms-relay/internal/confirm"
	"github.com/nhle/sms-relay/internal/relay"
)

// SyncState represents the current state of the poll loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus is a snapshot of the poll loop.
type SyncStatus struct {
	State    SyncState
	Cycles   int
	LastSync time.Time
	Error    error
}

// defaultInterval applies when the configured interval is not positive.
const defaultInterval = 60 * time.Second

// Cycler runs one fetch cycle. relay.Pipeline implements it.
type Cycler interface {
	RunCycle(ctx context.Context) (relay.CycleReport, error)
}

// Poller drives a Cycler: one cycle immediately, then one every
// interval measured from the end of the previous cycle, so a slow
// confirmation never causes back-to-back cycles.
type Poller struct {
	cycler   Cycler
	interval time.Duration
	logger   *slog.Logger

	mu     gosync.Mutex
	status SyncStatus
}

// New creates a Poller.
func New(c Cycler, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{cycler: c, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled or a cycle returns a fatal error.
// Cancellation and operator abort return nil.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping poll loop")
			return nil
		case <-timer.C:
		}

		stop, err := p.cycle(ctx)
		if stop {
			return err
		}

		timer.Reset(p.interval)
		p.logger.Debug("waiting for next cycle", "interval", p.interval)
	}
}

// Once runs a single cycle.
func (p *Poller) Once(ctx context.Context) error {
	_, err := p.cycle(ctx)
	return err
}

// Status returns the current loop status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// cycle runs one cycle and reports whether the loop must stop, along
// with the error to surface (nil for a clean stop).
func (p *Poller) cycle(ctx context.Context) (bool, error) {
	p.setState(SyncRunning, nil)

	report, err := p.cycler.RunCycle(ctx)

	switch {
	case err == nil:
		if report.FetchErr != nil {
			p.setState(SyncError, report.FetchErr)
		} else {
			p.setState(SyncIdle, nil)
		}
		return false, nil
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
		p.setState(SyncIdle, nil)
		p.logger.Info("stopping poll loop")
		return true, nil
	case errors.Is(err, confirm.ErrAborted):
		p.setState(SyncIdle, nil)
		p.logger.Info("confirmation aborted, stopping")
		return true, nil
	default:
		p.setState(SyncError, err)
		return true, err
	}
}

func (p *Poller) setState(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state != SyncRunning {
		p.status.Cycles++
		if err == nil {
			p.status.LastSync = time.Now()
		}
	}
}
