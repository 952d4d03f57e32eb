package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/sms-relay/internal/source"
)

const inbox = "INBOX"

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP servers.
// Every call opens its own session; the relay polls on the order of
// minutes, so a long-lived connection buys nothing.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(
	host, port, username, password string, tls bool,
) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// connect dials the server, authenticates, and returns the logged-in
// client. The connection is closed as soon as ctx is done, which fails
// any command still waiting on the server. The caller must call release
// once it has logged out.
func (c *IMAPClient) connect(
	ctx context.Context,
) (client *imapclient.Client, release func() bool, err error) {
	addr := net.JoinHostPort(c.host, c.port)

	var conn net.Conn
	if c.tls {
		dialer := &tls.Dialer{Config: &tls.Config{
			ServerName: c.host,
			NextProtos: []string{"imap"},
		}}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	release = context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		if err != nil {
			release()
			_ = conn.Close()
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = fmt.Errorf("connecting to IMAP %s: %w", addr, ctxErr)
			}
		}
	}()

	if c.tls {
		client = imapclient.New(conn, nil)
	} else {
		client, err = imapclient.NewStartTLS(conn, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: c.host},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("starting TLS with %s: %w", addr, err)
		}
	}

	if err = client.Login(c.username, c.password).Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, &source.AuthError{
			SourceType: source.SourceTypeIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.username, err,
			),
		}
	}

	return client, release, nil
}

// session connects, selects INBOX, and hands the client and the
// mailbox's UIDVALIDITY to fn.
func (c *IMAPClient) session(
	ctx context.Context,
	fn func(client *imapclient.Client, uidValidity uint32) error,
) (err error) {
	client, release, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer release()
	defer func() {
		if ctx.Err() != nil {
			_ = client.Close()
			return
		}
		_ = client.Logout().Wait()
	}()
	defer func() {
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
	}()

	sel, err := client.Select(inbox, nil).Wait()
	if err != nil {
		return fmt.Errorf("selecting %s: %w", inbox, err)
	}

	return fn(client, sel.UIDValidity)
}

// SearchUIDs returns the UIDs matching criteria in ascending order,
// together with the mailbox's UIDVALIDITY.
func (c *IMAPClient) SearchUIDs(
	ctx context.Context, criteria *imap.SearchCriteria,
) ([]imap.UID, uint32, error) {
	var (
		uids     []imap.UID
		validity uint32
	)

	err := c.session(ctx, func(client *imapclient.Client, v uint32) error {
		validity = v

		data, err := client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching messages: %w", err)
		}
		uids = data.AllUIDs()
		return nil
	})

	return uids, validity, err
}

// FetchRaw returns the full RFC 5322 source of the message with the
// given UID. The body is fetched with PEEK so the \Seen flag is left
// untouched.
func (c *IMAPClient) FetchRaw(
	ctx context.Context, uidValidity uint32, uid imap.UID,
) ([]byte, error) {
	var raw []byte

	err := c.session(ctx, func(client *imapclient.Client, v uint32) error {
		if v != uidValidity {
			return fmt.Errorf(
				"%s UIDVALIDITY changed (%d, expected %d)",
				inbox, v, uidValidity,
			)
		}

		bodySection := &imap.FetchItemBodySection{Peek: true}
		fetchOpts := &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{bodySection},
		}

		fetchCmd := client.Fetch(imap.UIDSetNum(uid), fetchOpts)
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			return fmt.Errorf("message UID %d not found", uid)
		}

		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("collecting message data: %w", err)
		}

		raw = buf.FindBodySection(bodySection)
		if raw == nil {
			return fmt.Errorf("message UID %d has no body", uid)
		}

		if err := fetchCmd.Close(); err != nil {
			return fmt.Errorf("closing fetch: %w", err)
		}
		return nil
	})

	return raw, err
}

// SetFlags modifies flags on a message. If add is true, the flags are
// added; otherwise they are removed.
func (c *IMAPClient) SetFlags(
	ctx context.Context,
	uid imap.UID,
	flags []imap.Flag,
	add bool,
) error {
	return c.session(ctx, func(client *imapclient.Client, _ uint32) error {
		op := imap.StoreFlagsAdd
		if !add {
			op = imap.StoreFlagsDel
		}

		storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
			Op:     op,
			Silent: true,
			Flags:  flags,
		}, nil)

		return storeCmd.Close()
	})
}
