// Package mastodon publishes posts to a Mastodon instance.
package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gomastodon "github.com/mattn/go-mastodon"

	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/publish"
)

const backendName = "mastodon"

// Poster implements publish.Poster for Mastodon.
type Poster struct {
	client     *gomastodon.Client
	visibility string
}

// New creates a Poster for the instance at server. An empty visibility
// means "public".
func New(server, accessToken, visibility string) *Poster {
	if visibility == "" {
		visibility = "public"
	}
	return &Poster{
		client: gomastodon.NewClient(&gomastodon.Config{
			Server:      strings.TrimRight(server, "/"),
			AccessToken: accessToken,
		}),
		visibility: visibility,
	}
}

// Name returns "mastodon".
func (p *Poster) Name() string {
	return backendName
}

// Verify fetches the authenticated account and returns its handle.
func (p *Poster) Verify(ctx context.Context) (string, error) {
	account, err := p.client.GetAccountCurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("verifying mastodon credentials: %w", classify(err))
	}
	return "@" + account.Acct, nil
}

// Publish posts text as a status.
func (p *Poster) Publish(
	ctx context.Context, text string,
) (*model.PublishedPost, error) {
	status, err := p.client.PostStatus(ctx, &gomastodon.Toot{
		Status:     text,
		Visibility: p.visibility,
	})
	if err != nil {
		return nil, fmt.Errorf("posting mastodon status: %w", classify(err))
	}

	return &model.PublishedPost{
		ID:  string(status.ID),
		URL: status.URL,
	}, nil
}

func classify(err error) error {
	var apiErr *gomastodon.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return &publish.AuthError{Backend: backendName, Message: apiErr.Message}
	}
	return err
}
