package store

import (
	"context"
	"fmt"

	"github.com/nhle/sms-relay/internal/model"
)

// Ledger is the durable set of inbox message ids that have already been
// disposed of. Membership checks are served from memory; Record persists
// the entry before returning so the next fetch cycle sees it.
type Ledger interface {
	// Contains reports whether messageID has been recorded.
	Contains(messageID string) bool

	// Record appends an entry. Recording an id twice is a no-op.
	Record(ctx context.Context, entry model.LedgerEntry) error

	// Len returns the number of recorded ids.
	Len() int

	// Close releases the backing file or database.
	Close() error
}

// Open opens the ledger backend selected by cfg.
func Open(cfg model.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case model.LedgerSQLite:
		return NewSQLiteStore(cfg.Path)
	case model.LedgerFile, "":
		return OpenFileLedger(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
