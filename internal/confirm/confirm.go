// Package confirm decides whether a prepared post should be published.
package confirm

import (
	"context"
	"errors"
	"time"
)

// ErrAborted is returned when the operator interrupts a confirmation.
// The relay stops when it sees it.
var ErrAborted = errors.New("confirmation aborted")

// ErrDryRun is returned by confirmers that never publish. The message is
// left unledgered so a later run can publish it.
var ErrDryRun = errors.New("dry run")

// Preview is what the operator sees before a post goes out.
type Preview struct {
	MessageID string
	Phone     string
	SentAt    time.Time
	Stale     bool
	Text      string
	Poster    string
}

// Confirmer approves or declines a post. A false result with a nil
// error means the operator declined.
type Confirmer interface {
	Confirm(ctx context.Context, p Preview) (bool, error)
}

// Auto approves every post.
type Auto struct{}

// Confirm always returns true.
func (Auto) Confirm(context.Context, Preview) (bool, error) {
	return true, nil
}

// Never publishes nothing. Every preview is reported through OnPreview
// and then skipped with ErrDryRun.
type Never struct {
	OnPreview func(Preview)
}

// Confirm reports p and returns ErrDryRun.
func (n Never) Confirm(_ context.Context, p Preview) (bool, error) {
	if n.OnPreview != nil {
		n.OnPreview(p)
	}
	return false, ErrDryRun
}
