package gmail

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	gosync "sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/nhle/sms-relay/internal/credential"
	"github.com/nhle/sms-relay/internal/source"
)

// TokenUpdateFunc is called with a freshly refreshed token.
type TokenUpdateFunc func(*oauth2.Token) error

// Scopes returns the OAuth scopes the relay needs. Marking messages read
// requires gmail.modify; otherwise read-only access is enough.
func Scopes(markRead bool) []string {
	if markRead {
		return []string{gmail.GmailModifyScope}
	}
	return []string{gmail.GmailReadonlyScope}
}

// LoadOAuthConfig reads an installed-application client secret file as
// downloaded from the Google Cloud console.
func LoadOAuthConfig(path string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gmail credentials file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing gmail credentials file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadToken reads the stored OAuth token from the keyring. A missing
// token is reported as an AuthError so startup fails with a pointer to
// `sms-relay auth gmail`.
func LoadToken(store *credential.Store) (*oauth2.Token, error) {
	raw, err := store.Get(credential.KeyGmailToken)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, &source.AuthError{
			SourceType: source.SourceTypeGmail,
			Message:    "no stored token, run `sms-relay auth gmail`",
		}
	}
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decoding stored gmail token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to the keyring.
func SaveToken(store *credential.Store, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding gmail token: %w", err)
	}
	return store.Set(credential.KeyGmailToken, string(data))
}

// notifyTokenSource wraps a TokenSource and reports every new access
// token so refreshed credentials survive a restart.
type notifyTokenSource struct {
	mu       gosync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callback != nil && (s.current == nil || s.current.AccessToken != t.AccessToken) {
		s.current = t
		if err := s.callback(t); err != nil {
			slog.Warn("saving refreshed gmail token failed", "error", err)
		}
	}
	return t, nil
}
