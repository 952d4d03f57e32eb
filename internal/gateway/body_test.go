package gateway

import "testing"

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "link and reply footer",
			raw:  "<https://voice.google.com> Hello\n\nReply STOP to end",
			want: "Hello",
		},
		{
			name: "link on its own line",
			raw:  "<https://voice.google.com>\r\nHi there\r\n\r\nTo respond to this text message, reply to this email or visit Google Voice.\r\n",
			want: "Hi there",
		},
		{
			name: "abbreviated footer, mixed case",
			raw:  "Meeting moved to 3pm\n\nrply stop to opt out",
			want: "Meeting moved to 3pm",
		},
		{
			name: "first marker wins",
			raw:  "one Reply STOP two To respond to this text message three",
			want: "one",
		},
		{
			name: "surrounding whitespace",
			raw:  "   \n plain text \n\t",
			want: "plain text",
		},
		{
			name: "link not at start is kept",
			raw:  "see <https://voice.google.com> later",
			want: "see <https://voice.google.com> later",
		},
		{
			name: "only boilerplate",
			raw:  "<https://voice.google.com> Reply STOP to end",
			want: "",
		},
		{
			name: "multibyte text before footer",
			raw:  "<https://voice.google.com> İstanbul ☀️\nREPLY STOP",
			want: "İstanbul ☀️",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBody(tt.raw)
			if got != tt.want {
				t.Errorf("NormalizeBody(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeBodyIdempotent(t *testing.T) {
	inputs := []string{
		"<https://voice.google.com> Hello\n\nReply STOP to end",
		"<https://voice.google.com> <https://voice.google.com> doubled",
		"  spaced  ",
		"To respond to this text message",
		GenesisMessage,
		"",
	}
	for _, in := range inputs {
		once := NormalizeBody(in)
		twice := NormalizeBody(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestIsGenesis(t *testing.T) {
	if !IsGenesis(NormalizeBody("<https://voice.google.com> " + GenesisMessage + "\n\nReply STOP to end")) {
		t.Error("expected the welcome message to be classified as genesis")
	}
	if IsGenesis(GenesisMessage + " Really.") {
		t.Error("only an exact match is genesis")
	}
}
