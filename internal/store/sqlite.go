package store

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/sms-relay/internal/model"
)

// SQLiteStore implements Ledger using a local SQLite database. Unlike
// FileLedger it keeps the outcome and post reference of every entry.
type SQLiteStore struct {
	db  *sqlx.DB
	ids map[string]struct{}
	mu  gosync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, runs any pending schema migrations, and loads the
// recorded message ids.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: pragmas are per connection, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Record must be durable before the next cycle reads the ledger.
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.loadIDs(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (s *SQLiteStore) loadIDs() error {
	var ids []string
	if err := s.db.Select(&ids, "SELECT message_id FROM processed_messages"); err != nil {
		return fmt.Errorf("loading ledger ids: %w", err)
	}

	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return nil
}

// Contains reports whether messageID has been recorded.
func (s *SQLiteStore) Contains(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ids[messageID]
	return ok
}

// Record inserts entry. An id that is already present keeps its first
// outcome.
func (s *SQLiteStore) Record(ctx context.Context, entry model.LedgerEntry) error {
	if entry.MessageID == "" {
		return fmt.Errorf("ledger entry has no message id")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_messages (
			id, message_id, outcome, post_ref, recorded_at
		) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), entry.MessageID, string(entry.Outcome),
		entry.PostRef, entry.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording message %s: %w", entry.MessageID, err)
	}

	s.mu.Lock()
	s.ids[entry.MessageID] = struct{}{}
	s.mu.Unlock()

	return nil
}

// Len returns the number of recorded ids.
func (s *SQLiteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ids)
}

// EntryFilter controls which ledger entries Entries returns.
type EntryFilter struct {
	Outcome *model.Outcome
	Limit   int
}

// Entries returns recorded entries, newest first.
func (s *SQLiteStore) Entries(
	ctx context.Context,
	filter EntryFilter,
) ([]model.LedgerEntry, error) {
	query := `SELECT message_id, outcome, post_ref, recorded_at FROM processed_messages`
	var args []interface{}

	if filter.Outcome != nil {
		query += " WHERE outcome = ?"
		args = append(args, string(*filter.Outcome))
	}

	query += " ORDER BY recorded_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var entries []model.LedgerEntry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("querying ledger entries: %w", err)
	}

	return entries, nil
}
