package gmail

import (
	"testing"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"

	"github.com/nhle/sms-relay/internal/credential"
	"github.com/nhle/sms-relay/internal/source"
)

func TestTokenRoundTripThroughKeyring(t *testing.T) {
	store := credential.NewStore(keyring.NewArrayKeyring(nil))

	if _, err := LoadToken(store); !source.IsAuthError(err) {
		t.Fatalf("LoadToken on empty keyring: err = %v, want AuthError", err)
	}

	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}
	if err := SaveToken(store, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	got, err := LoadToken(store)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("LoadToken = %+v", got)
	}
}

func TestNotifyTokenSourceReportsNewTokens(t *testing.T) {
	var saved []string
	ts := &notifyTokenSource{
		src:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fresh"}),
		current: &oauth2.Token{AccessToken: "stale"},
		callback: func(tok *oauth2.Token) error {
			saved = append(saved, tok.AccessToken)
			return nil
		},
	}

	for i := 0; i < 3; i++ {
		if _, err := ts.Token(); err != nil {
			t.Fatalf("Token: %v", err)
		}
	}

	if len(saved) != 1 || saved[0] != "fresh" {
		t.Errorf("callback saw %v, want exactly one fresh token", saved)
	}
}

func TestScopes(t *testing.T) {
	if got := Scopes(true); len(got) != 1 || got[0] != "https://www.googleapis.com/auth/gmail.modify" {
		t.Errorf("Scopes(true) = %v", got)
	}
	if got := Scopes(false); len(got) != 1 || got[0] != "https://www.googleapis.com/auth/gmail.readonly" {
		t.Errorf("Scopes(false) = %v", got)
	}
}
