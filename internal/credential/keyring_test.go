package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	if _, err := s.Get(KeyMastodonToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty keyring: err = %v, want ErrNotFound", err)
	}

	if err := s.Set(KeyMastodonToken, "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(KeyMastodonToken)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "tok" {
		t.Errorf("Get = %q, want tok", got)
	}

	if err := s.Delete(KeyMastodonToken); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(KeyMastodonToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(KeyMastodonToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete of missing key: err = %v, want ErrNotFound", err)
	}
}

func TestStoreResolve(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring([]keyring.Item{
		{Key: KeyIMAPPassword, Data: []byte("from-keyring")},
	}))

	tests := []struct {
		name  string
		value string
		key   string
		want  string
	}{
		{"explicit value wins", "from-config", KeyIMAPPassword, "from-config"},
		{"falls back to keyring", "", KeyIMAPPassword, "from-keyring"},
		{"missing everywhere", "", KeyBlueskyAppPassword, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Resolve(tt.value, tt.key)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}
