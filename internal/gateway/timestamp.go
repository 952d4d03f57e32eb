package gateway

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// StaleAfter is the age past which a message is published with its send
// time prepended.
const StaleAfter = time.Hour

// timestampLayout renders as e.g. "Mar 4, 2025 2:07 PM".
const timestampLayout = "Jan 2, 2006 3:04 PM"

// ParseDate parses an RFC 2822 Date header.
func ParseDate(header string) (time.Time, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Time{}, fmt.Errorf("empty date header")
	}

	t, err := mail.ParseDate(header)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", header, err)
	}
	return t, nil
}

// IsStale reports whether a message sent at sentAt is older than
// StaleAfter at now. A zero sentAt is never stale.
func IsStale(sentAt, now time.Time) bool {
	if sentAt.IsZero() {
		return false
	}
	return now.Sub(sentAt) > StaleAfter
}

// PostText returns the text to publish for body. Stale messages get a
// "📱 <date>" line and a blank line in front so readers know the post is
// not live.
func PostText(body string, sentAt, now time.Time, loc *time.Location) string {
	if !IsStale(sentAt, now) {
		return body
	}
	if loc == nil {
		loc = time.Local
	}
	return "📱 " + sentAt.In(loc).Format(timestampLayout) + "\n\n" + body
}
