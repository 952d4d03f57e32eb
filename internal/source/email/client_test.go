package email

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nhle/sms-relay/internal/source"
)

// silentServer accepts connections and never writes a greeting.
func silentServer(t *testing.T) (host, port string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				<-done
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		close(done)
		_ = ln.Close()
	})

	host, port, err = net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func TestCallsHonorContextDeadline(t *testing.T) {
	tests := []struct {
		name   string
		useTLS bool
		call   func(ctx context.Context, a *Adapter) error
	}{
		{
			name: "list starttls",
			call: func(ctx context.Context, a *Adapter) error {
				_, err := a.List(ctx, source.Query{SenderDomain: "txt.voice.google.com"})
				return err
			},
		},
		{
			name:   "list implicit tls",
			useTLS: true,
			call: func(ctx context.Context, a *Adapter) error {
				_, err := a.List(ctx, source.Query{})
				return err
			},
		},
		{
			name: "validate",
			call: func(ctx context.Context, a *Adapter) error {
				_, err := a.ValidateConnection(ctx)
				return err
			},
		},
		{
			name: "get",
			call: func(ctx context.Context, a *Adapter) error {
				_, err := a.Get(ctx, "1.42")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := silentServer(t)
			a := NewAdapter(host, port, "relay", "secret", tt.useTLS)

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			errc := make(chan error, 1)
			go func() { errc <- tt.call(ctx, a) }()

			select {
			case err := <-errc:
				if !errors.Is(err, context.DeadlineExceeded) {
					t.Errorf("err = %v, want context.DeadlineExceeded", err)
				}
				if source.IsAuthError(err) {
					t.Errorf("a timeout must not be reported as an auth failure: %v", err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("call still blocked 3s after its deadline")
			}
		})
	}
}

func TestCallsStopOnCancel(t *testing.T) {
	host, port := silentServer(t)
	a := NewAdapter(host, port, "relay", "secret", false)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := a.List(ctx, source.Query{})
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("List still blocked after cancel")
	}
}
