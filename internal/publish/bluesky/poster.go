package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/publish"
)

const backendName = "bluesky"

// Poster implements publish.Poster for Bluesky. It logs in lazily and
// logs in again once when the session token has expired.
type Poster struct {
	client      *Client
	identifier  string
	appPassword string
	now         func() time.Time
}

// New creates a Poster that authenticates as identifier.
func New(pds, identifier, appPassword string) *Poster {
	return &Poster{
		client:      NewClient(pds),
		identifier:  identifier,
		appPassword: appPassword,
		now:         time.Now,
	}
}

// Name returns "bluesky".
func (p *Poster) Name() string {
	return backendName
}

// Verify creates a session and returns the account handle.
func (p *Poster) Verify(ctx context.Context) (string, error) {
	if err := p.login(ctx); err != nil {
		return "", err
	}
	return "@" + p.client.Handle(), nil
}

// Publish creates a post record.
func (p *Poster) Publish(
	ctx context.Context, text string,
) (*model.PublishedPost, error) {
	if p.client.accessJwt == "" {
		if err := p.login(ctx); err != nil {
			return nil, err
		}
	}

	uri, err := p.client.CreatePost(ctx, text, p.now())
	if isExpired(err) {
		if err := p.login(ctx); err != nil {
			return nil, err
		}
		uri, err = p.client.CreatePost(ctx, text, p.now())
	}
	if err != nil {
		return nil, fmt.Errorf("posting to bluesky: %w", err)
	}

	return &model.PublishedPost{
		ID:  uri,
		URL: postURL(p.client.Handle(), uri),
	}, nil
}

func (p *Poster) login(ctx context.Context) error {
	err := p.client.Login(ctx, p.identifier, p.appPassword)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return &publish.AuthError{Backend: backendName, Message: apiErr.Message}
	}
	if err != nil {
		return fmt.Errorf("logging in to bluesky: %w", err)
	}
	return nil
}

func isExpired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "ExpiredToken"
}

// postURL maps at://did/app.bsky.feed.post/<rkey> to its bsky.app page.
func postURL(handle, uri string) string {
	i := strings.LastIndex(uri, "/")
	if handle == "" || i < 0 {
		return uri
	}
	return "https://bsky.app/profile/" + handle + "/post/" + uri[i+1:]
}
