package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nhle/sms-relay/internal/model"
)

func TestFileLedgerMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")

	l, err := OpenFileLedger(path)
	if err != nil {
		t.Fatalf("OpenFileLedger: %v", err)
	}
	defer l.Close()

	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
	if l.Contains("anything") {
		t.Error("empty ledger should not contain anything")
	}
}

func TestFileLedgerRecordSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.txt")

	l, err := OpenFileLedger(path)
	if err != nil {
		t.Fatalf("OpenFileLedger: %v", err)
	}
	for _, id := range []string{"18c1", "18c2", "18c1"} {
		if err := l.Record(ctx, model.LedgerEntry{MessageID: id, Outcome: model.OutcomePublished}); err != nil {
			t.Fatalf("Record(%s): %v", id, err)
		}
	}
	if !l.Contains("18c1") || !l.Contains("18c2") {
		t.Error("recorded ids should be visible immediately")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading ledger: %v", err)
	}
	if got, want := string(data), "18c1\n18c2\n"; got != want {
		t.Errorf("ledger file = %q, want %q", got, want)
	}

	reopened, err := OpenFileLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 2 {
		t.Errorf("Len after reopen = %d, want 2", reopened.Len())
	}
	if !reopened.Contains("18c2") {
		t.Error("reopened ledger lost an id")
	}
}

func TestFileLedgerIgnoresBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	if err := os.WriteFile(path, []byte("a\n\n  b  \n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := OpenFileLedger(path)
	if err != nil {
		t.Fatalf("OpenFileLedger: %v", err)
	}
	defer l.Close()

	if l.Len() != 2 || !l.Contains("a") || !l.Contains("b") {
		t.Errorf("unexpected ledger contents, Len = %d", l.Len())
	}
}

func TestFileLedgerRejectsBadIDs(t *testing.T) {
	l, err := OpenFileLedger(filepath.Join(t.TempDir(), "ledger.txt"))
	if err != nil {
		t.Fatalf("OpenFileLedger: %v", err)
	}
	defer l.Close()

	for _, id := range []string{"", "   ", "a\nb", " 18c1", "18c1\t"} {
		if err := l.Record(context.Background(), model.LedgerEntry{MessageID: id}); err == nil {
			t.Errorf("Record(%q) expected error", id)
		}
		if l.Contains(strings.TrimSpace(id)) {
			t.Errorf("Record(%q) stored a trimmed id", id)
		}
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(model.LedgerConfig{Backend: model.LedgerFile, Path: filepath.Join(dir, "l.txt")})
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := l.(*FileLedger); !ok {
		t.Errorf("got %T, want *FileLedger", l)
	}
	l.Close()

	l, err = Open(model.LedgerConfig{Backend: model.LedgerSQLite, Path: filepath.Join(dir, "l.db")})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if _, ok := l.(*SQLiteStore); !ok {
		t.Errorf("got %T, want *SQLiteStore", l)
	}
	l.Close()

	if _, err := Open(model.LedgerConfig{Backend: "redis"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
