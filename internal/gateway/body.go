package gateway

import (
	"regexp"
	"strings"
)

// GenesisMessage is the welcome text the gateway sends once when
// forwarding is first set up. It is never published.
const GenesisMessage = "Thxs for texting. More mobile updates coming soon."

// leadingLink matches the link line the gateway puts at the top of every
// forwarded text.
var leadingLink = regexp.MustCompile(`^<https://voice\.google\.com>\s+`)

// footerMarker matches the first line of the gateway's reply instructions.
var footerMarker = regexp.MustCompile(`(?i)Rply STOP|Reply STOP|To respond to this text message`)

// NormalizeBody removes the gateway's leading link and reply footer from a
// decoded message body and trims the result. Applying it to its own output
// returns the output unchanged.
func NormalizeBody(raw string) string {
	body := strings.TrimSpace(raw)

	for {
		loc := leadingLink.FindStringIndex(body)
		if loc == nil {
			break
		}
		body = body[loc[1]:]
	}

	if loc := footerMarker.FindStringIndex(body); loc != nil {
		body = strings.TrimSpace(body[:loc[0]])
	}

	return body
}

// IsGenesis reports whether a normalized body is the gateway's welcome
// message.
func IsGenesis(body string) bool {
	return body == GenesisMessage
}
