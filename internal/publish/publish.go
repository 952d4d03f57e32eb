// Package publish defines the contract for posting relayed text to a
// social network.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/sms-relay/internal/model"
)

// Poster publishes text as a public post.
type Poster interface {
	// Name returns the backend identifier ("mastodon", "bluesky").
	Name() string

	// Verify checks the credentials and returns the account handle.
	Verify(ctx context.Context) (string, error)

	// Publish posts text and returns a reference to the new post.
	Publish(ctx context.Context, text string) (*model.PublishedPost, error)
}

// AuthError indicates that the posting API rejected the credentials.
type AuthError struct {
	Backend string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Backend, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
