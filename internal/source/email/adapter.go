package email

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/source"
)

// Adapter implements source.Mailbox over IMAP.
type Adapter struct {
	imapClient *IMAPClient
	username   string
}

// NewAdapter creates a new IMAP mailbox adapter.
func NewAdapter(
	host, port, username, password string,
	useTLS bool,
) *Adapter {
	return &Adapter{
		imapClient: NewIMAPClient(host, port, username, password, useTLS),
		username:   username,
	}
}

// Type returns the source type identifier for IMAP.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeIMAP
}

// ValidateConnection verifies IMAP credentials by connecting,
// authenticating, and selecting INBOX. Returns the username on success.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	err := a.imapClient.session(ctx, func(*imapclient.Client, uint32) error {
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("validating IMAP connection: %w", err)
	}

	return a.username, nil
}

// List searches INBOX for messages from q.SenderDomain received since
// q.Since. Every match is returned, newest first. UID SEARCH answers in
// one response, so q.PageSize does not apply.
func (a *Adapter) List(ctx context.Context, q source.Query) ([]string, error) {
	criteria := searchCriteria(q)

	uids, validity, err := a.imapClient.SearchUIDs(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("listing IMAP messages: %w", err)
	}

	// UIDs ascend with arrival.
	ids := make([]string, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		ids = append(ids, formatID(validity, uids[i]))
	}
	return ids, nil
}

// Get fetches the message source and parses it into an InboundMessage.
func (a *Adapter) Get(
	ctx context.Context, id string,
) (*model.InboundMessage, error) {
	validity, uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	raw, err := a.imapClient.FetchRaw(ctx, validity, uid)
	if err != nil {
		return nil, fmt.Errorf("fetching IMAP message %s: %w", id, err)
	}

	msg, err := ParseMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing IMAP message %s: %w", id, err)
	}
	msg.ID = id

	return msg, nil
}

// MarkRead sets the \Seen flag on the message.
func (a *Adapter) MarkRead(ctx context.Context, id string) error {
	_, uid, err := parseID(id)
	if err != nil {
		return err
	}

	if err := a.imapClient.SetFlags(
		ctx, uid, []imap.Flag{imap.FlagSeen}, true,
	); err != nil {
		return fmt.Errorf("marking IMAP message %s read: %w", id, err)
	}
	return nil
}

func searchCriteria(q source.Query) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if !q.Since.IsZero() {
		criteria.Since = q.Since
	}
	if q.SenderDomain != "" {
		criteria.Header = []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: q.SenderDomain},
		}
	}
	return criteria
}

// Message ids are "<uidvalidity>.<uid>" so that a rebuilt mailbox
// never aliases ledger entries from its previous incarnation.
func formatID(uidValidity uint32, uid imap.UID) string {
	return strconv.FormatUint(uint64(uidValidity), 10) + "." +
		strconv.FormatUint(uint64(uid), 10)
}

func parseID(id string) (uint32, imap.UID, error) {
	validityStr, uidStr, ok := strings.Cut(id, ".")
	if !ok {
		return 0, 0, fmt.Errorf("invalid IMAP message id %q", id)
	}

	validity, err := strconv.ParseUint(validityStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid IMAP message id %q: %w", id, err)
	}

	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, fmt.Errorf("invalid IMAP message id %q", id)
	}

	return uint32(validity), imap.UID(uid), nil
}
