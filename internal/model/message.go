package model

import "time"

// Part is one node of a message payload tree. It mirrors the Gmail API
// payload shape: a MIME type plus either inline base64url data or child
// parts.
type Part struct {
	// MimeType is the part's content type without parameters
	// (e.g., "text/plain", "multipart/alternative").
	MimeType string `json:"mime_type"`

	// Data is the base64url-encoded inline body, empty for container parts.
	Data string `json:"data,omitempty"`

	// Parts holds the immediate children of a multipart node.
	Parts []*Part `json:"parts,omitempty"`
}

// InboundMessage is a message fetched from the mailbox. It is not modified
// after the mailbox returns it.
type InboundMessage struct {
	// ID is the provider-assigned identifier, opaque and unique per mailbox.
	ID string `json:"id"`

	// From is the raw sender header ("display" <address> or a bare address).
	From string `json:"from"`

	// Subject is the message subject, possibly empty.
	Subject string `json:"subject"`

	// Date is the raw RFC 2822 Date header. It may be empty or unparseable.
	Date string `json:"date"`

	// Payload is the root of the MIME part tree.
	Payload *Part `json:"payload"`
}

// NormalizedMessage is the pipeline's working view of an InboundMessage
// after the sender, body, and timestamp have been extracted.
type NormalizedMessage struct {
	// Phone is the sender's 10-digit number, empty when undetermined.
	Phone string

	// Body is the cleaned text with gateway boilerplate removed.
	Body string

	// SentAt is the parsed Date header; zero when it could not be parsed.
	SentAt time.Time

	// PostText is the text that will be published.
	PostText string
}

// Outcome is the terminal disposition recorded for a message.
type Outcome string

const (
	OutcomePublished   Outcome = "published"
	OutcomeWrongSender Outcome = "wrong_sender"
	OutcomeUndecodable Outcome = "undecodable"
	OutcomeGenesis     Outcome = "genesis"
	OutcomeDeclined    Outcome = "declined"
	OutcomeFailed      Outcome = "failed"
)

// LedgerEntry records that a message has been disposed of.
type LedgerEntry struct {
	// MessageID is the InboundMessage.ID this entry refers to.
	MessageID string `db:"message_id"`

	// Outcome is how the message was disposed of.
	Outcome Outcome `db:"outcome"`

	// PostRef is the published post URL, set only for OutcomePublished.
	PostRef string `db:"post_ref"`

	// RecordedAt is when the entry was written.
	RecordedAt time.Time `db:"recorded_at"`
}

// PublishedPost is the reference returned by a successful publish.
type PublishedPost struct {
	ID  string
	URL string
}
