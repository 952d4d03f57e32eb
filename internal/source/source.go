package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/sms-relay/internal/model"
)

// AuthError indicates that authentication has failed or expired for a
// mailbox. It is returned by mailbox clients when the provider rejects
// the stored credentials.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// SourceType identifies the kind of mailbox integration.
type SourceType string

const (
	SourceTypeGmail SourceType = "gmail"
	SourceTypeIMAP  SourceType = "imap"
)

// Query selects candidate messages from a mailbox.
type Query struct {
	// SenderDomain restricts results to senders at this domain
	// (e.g., "txt.voice.google.com").
	SenderDomain string

	// Since excludes messages received before this instant.
	// The zero value disables the bound.
	Since time.Time

	// PageSize is how many ids to request per round trip from
	// providers that page their results. Zero means the provider's
	// default. It never limits what List returns.
	PageSize int
}

// Mailbox defines the contract that every mailbox integration must implement.
type Mailbox interface {
	// Type returns the mailbox type identifier.
	Type() SourceType

	// ValidateConnection verifies credentials and connectivity.
	// Returns a human-readable status message on success.
	ValidateConnection(ctx context.Context) (string, error)

	// List returns the ids of every message matching q, newest first,
	// paging through the provider's results until the window is
	// exhausted.
	List(ctx context.Context, q Query) ([]string, error)

	// Get retrieves a single message with its full payload tree.
	Get(ctx context.Context, id string) (*model.InboundMessage, error)

	// MarkRead flags a message as read in the mailbox.
	MarkRead(ctx context.Context, id string) error
}
