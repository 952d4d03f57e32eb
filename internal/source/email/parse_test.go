package email

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/sms-relay/internal/source"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func decodePart(t *testing.T, data string) string {
	t.Helper()
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("decoding part data: %v", err)
	}
	return string(b)
}

func TestParseMessageMultipart(t *testing.T) {
	raw := crlf(`From: "(715) 200-9057" <12345.17152009057.abcd@txt.voice.google.com>
Subject: New text message from (715) 200-9057
Date: Tue, 04 Mar 2025 11:00:00 -0600
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset="UTF-8"
Content-Transfer-Encoding: quoted-printable

<https://voice.google.com>
Hello from the road =F0=9F=9A=97

--b1
Content-Type: text/html; charset="UTF-8"

<p>Hello from the road</p>
--b1--
`)

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	if msg.From != `"(715) 200-9057" <12345.17152009057.abcd@txt.voice.google.com>` {
		t.Errorf("From = %q", msg.From)
	}
	if msg.Subject != "New text message from (715) 200-9057" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.Date != "Tue, 04 Mar 2025 11:00:00 -0600" {
		t.Errorf("Date = %q", msg.Date)
	}

	p := msg.Payload
	if p.MimeType != "multipart/alternative" {
		t.Fatalf("root MimeType = %q", p.MimeType)
	}
	if p.Data != "" {
		t.Errorf("container part should carry no data")
	}
	if len(p.Parts) != 2 {
		t.Fatalf("len(Parts) = %d, want 2", len(p.Parts))
	}
	if p.Parts[0].MimeType != "text/plain" {
		t.Errorf("first child = %q, want text/plain", p.Parts[0].MimeType)
	}

	body := decodePart(t, p.Parts[0].Data)
	if !strings.Contains(body, "Hello from the road 🚗") {
		t.Errorf("plain body = %q", body)
	}
}

func TestParseMessageSinglePart(t *testing.T) {
	raw := crlf(`From: someone@example.com
Subject: hi
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: base64

aGVsbG8gd29ybGQ=
`)

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	if msg.Payload.MimeType != "text/plain" {
		t.Errorf("MimeType = %q", msg.Payload.MimeType)
	}
	if got := decodePart(t, msg.Payload.Data); got != "hello world" {
		t.Errorf("body = %q", got)
	}
	if msg.Date != "" {
		t.Errorf("Date = %q, want empty", msg.Date)
	}
}

func TestMessageIDRoundTrip(t *testing.T) {
	id := formatID(1700000000, imap.UID(42))
	if id != "1700000000.42" {
		t.Fatalf("formatID = %q", id)
	}

	validity, uid, err := parseID(id)
	if err != nil {
		t.Fatalf("parseID: %v", err)
	}
	if validity != 1700000000 || uid != 42 {
		t.Errorf("parseID = (%d, %d)", validity, uid)
	}

	for _, bad := range []string{"", "42", "a.b", "1.0", "1.-3"} {
		if _, _, err := parseID(bad); err == nil {
			t.Errorf("parseID(%q) expected error", bad)
		}
	}
}

func TestSearchCriteria(t *testing.T) {
	c := searchCriteria(source.Query{SenderDomain: "txt.voice.google.com"})
	if len(c.Header) != 1 || c.Header[0].Key != "From" ||
		c.Header[0].Value != "txt.voice.google.com" {
		t.Errorf("Header = %+v", c.Header)
	}
	if !c.Since.IsZero() {
		t.Errorf("Since should be unset")
	}
}
