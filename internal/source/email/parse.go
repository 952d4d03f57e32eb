package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/sms-relay/internal/model"
)

// ParseMessage parses a raw RFC 5322 message into an InboundMessage.
// The MIME structure becomes a model.Part tree whose leaves carry the
// transfer-decoded body re-encoded as base64url, the same shape the
// Gmail API returns. The ID is left for the caller to set.
func ParseMessage(raw []byte) (*model.InboundMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	h := mail.Header{Header: entity.Header}

	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}

	from, err := h.Text("From")
	if err != nil {
		from = h.Get("From")
	}

	payload, err := buildPart(entity)
	if err != nil {
		return nil, err
	}

	return &model.InboundMessage{
		From:    from,
		Subject: subject,
		Date:    h.Get("Date"),
		Payload: payload,
	}, nil
}

func buildPart(e *message.Entity) (*model.Part, error) {
	mediaType, _, err := e.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	part := &model.Part{MimeType: strings.ToLower(mediaType)}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return nil, fmt.Errorf("reading %s part: %w", mediaType, err)
			}

			childPart, err := buildPart(child)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, childPart)
		}
		return part, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s body: %w", mediaType, err)
	}
	part.Data = base64.URLEncoding.EncodeToString(body)

	return part, nil
}
