package relay

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/nhle/sms-relay/internal/model"
)

// DecodeBody extracts the text of a message payload. Inline data on the
// root part wins; otherwise the first immediate text/plain child with
// inline data is used. Deeper descendants are not searched. It returns
// false when no usable text exists or the data is not valid base64url
// encoded UTF-8.
func DecodeBody(p *model.Part) (string, bool) {
	if p == nil {
		return "", false
	}

	if p.Data != "" {
		return decodeData(p.Data)
	}

	for _, child := range p.Parts {
		if child == nil || child.Data == "" {
			continue
		}
		if strings.EqualFold(child.MimeType, "text/plain") {
			return decodeData(child.Data)
		}
	}

	return "", false
}

// decodeData accepts base64url with or without padding.
func decodeData(data string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}
