package confirm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func runPrompt(t *testing.T, ctx context.Context, in io.Reader) (bool, error) {
	t.Helper()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := NewPrompt(in, io.Discard).Confirm(ctx, Preview{
			MessageID: "m1",
			Phone:     "7152009057",
			Text:      "Hello from the road",
			Poster:    "mastodon",
		})
		done <- result{ok, err}
	}()

	select {
	case r := <-done:
		return r.ok, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("prompt did not return")
		return false, nil
	}
}

func TestPromptKeys(t *testing.T) {
	tests := []struct {
		name    string
		keys    string
		want    bool
		wantErr error
	}{
		{name: "accept", keys: "y", want: true},
		{name: "accept upper", keys: "Y", want: true},
		{name: "reject", keys: "n", want: false},
		{name: "enter keeps default", keys: "\r", want: false},
		{name: "ctrl+c", keys: "\x03", wantErr: ErrAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := runPrompt(t, context.Background(), strings.NewReader(tt.keys))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if ok != tt.want {
				t.Errorf("Confirm = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestPromptCancelledContext(t *testing.T) {
	// The operator never answers.
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	ok, err := runPrompt(t, ctx, pr)
	if ok {
		t.Error("cancelled prompt must not approve")
	}
	if !errors.Is(err, ErrAborted) {
		t.Errorf("err = %v, want ErrAborted", err)
	}
}
