package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	gosync "sync"

	"github.com/nhle/sms-relay/internal/model"
)

// FileLedger is an append-only text file with one message id per line.
// The whole file is loaded into memory when opened.
type FileLedger struct {
	path string
	file *os.File
	ids  map[string]struct{}
	mu   gosync.Mutex
}

// OpenFileLedger loads the ids in path and opens it for appending. A
// missing file is an empty ledger; it is created on first open.
func OpenFileLedger(path string) (*FileLedger, error) {
	ids, err := readLedgerFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}

	return &FileLedger{path: path, file: f, ids: ids}, nil
}

func readLedgerFile(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning ledger %s: %w", path, err)
	}

	return ids, nil
}

// Contains reports whether messageID is in the ledger.
func (l *FileLedger) Contains(messageID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.ids[messageID]
	return ok
}

// Record appends entry.MessageID and syncs the file. Only the id is
// persisted; the outcome is reported through the logs.
func (l *FileLedger) Record(_ context.Context, entry model.LedgerEntry) error {
	// The file is line-oriented and read back trimmed, so an id must
	// survive that round trip unchanged.
	id := entry.MessageID
	if id == "" || id != strings.TrimSpace(id) || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("invalid ledger id %q", entry.MessageID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids[id]; ok {
		return nil
	}

	if _, err := l.file.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("appending %s to ledger %s: %w", id, l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing ledger %s: %w", l.path, err)
	}

	l.ids[id] = struct{}{}
	return nil
}

// Len returns the number of ids in the ledger.
func (l *FileLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.ids)
}

// Close closes the underlying file.
func (l *FileLedger) Close() error {
	return l.file.Close()
}
