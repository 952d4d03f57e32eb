// Package gmail implements source.Mailbox on top of the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/sms-relay/internal/model"
	"github.com/nhle/sms-relay/internal/source"
)

const user = "me"

// Adapter implements source.Mailbox for Gmail.
type Adapter struct {
	srv *gmail.Service
}

// NewAdapter builds a Gmail client authorized with token. Refreshed
// tokens are passed to onRefresh.
func NewAdapter(
	ctx context.Context,
	cfg *oauth2.Config,
	token *oauth2.Token,
	onRefresh TokenUpdateFunc,
) (*Adapter, error) {
	ts := &notifyTokenSource{
		src:      cfg.TokenSource(ctx, token),
		current:  token,
		callback: onRefresh,
	}

	return NewAdapterWithOptions(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
}

// NewAdapterWithOptions builds a Gmail client from raw client options.
func NewAdapterWithOptions(
	ctx context.Context, opts ...option.ClientOption,
) (*Adapter, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &Adapter{srv: srv}, nil
}

// Type returns the source type identifier for Gmail.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeGmail
}

// ValidateConnection fetches the mailbox profile and returns its address.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	profile, err := a.srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("validating gmail connection: %w", classify(err))
	}
	return profile.EmailAddress, nil
}

// List returns the ids of every message matching q, newest first as
// Gmail returns them, following nextPageToken to the end of the window.
func (a *Adapter) List(ctx context.Context, q source.Query) ([]string, error) {
	call := a.srv.Users.Messages.List(user).Q(searchQuery(q))
	if q.PageSize > 0 {
		call = call.MaxResults(int64(q.PageSize))
	}

	var ids []string
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing gmail messages: %w", classify(err))
	}
	return ids, nil
}

// Get retrieves the full message including its payload tree.
func (a *Adapter) Get(
	ctx context.Context, id string,
) (*model.InboundMessage, error) {
	msg, err := a.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting gmail message %s: %w", id, classify(err))
	}
	return convertMessage(msg), nil
}

// MarkRead removes the UNREAD label from a message.
func (a *Adapter) MarkRead(ctx context.Context, id string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}

	if _, err := a.srv.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("marking gmail message %s read: %w", id, classify(err))
	}
	return nil
}

func searchQuery(q source.Query) string {
	var terms []string
	if q.SenderDomain != "" {
		terms = append(terms, "from:"+q.SenderDomain)
	}
	if !q.Since.IsZero() {
		terms = append(terms, "after:"+strconv.FormatInt(q.Since.Unix(), 10))
	}
	return strings.Join(terms, " ")
}

// classify turns credential failures into source.AuthError.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &source.AuthError{SourceType: source.SourceTypeGmail, Message: apiErr.Message}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &source.AuthError{
			SourceType: source.SourceTypeGmail,
			Message:    fmt.Sprintf("token refresh failed: %v", retrieveErr),
		}
	}

	return err
}

func convertMessage(msg *gmail.Message) *model.InboundMessage {
	in := &model.InboundMessage{ID: msg.Id}
	if msg.Payload == nil {
		return in
	}

	in.From = getHeader(msg.Payload.Headers, "From")
	in.Subject = getHeader(msg.Payload.Headers, "Subject")
	in.Date = getHeader(msg.Payload.Headers, "Date")
	in.Payload = convertPart(msg.Payload)

	return in
}

func convertPart(p *gmail.MessagePart) *model.Part {
	part := &model.Part{MimeType: p.MimeType}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		if child != nil {
			part.Parts = append(part.Parts, convertPart(child))
		}
	}
	return part
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}
