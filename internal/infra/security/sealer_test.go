//go:build !integration

package security

import (
	"errors"
	"testing"
)

func TestSealer(t *testing.T) {
	s, err := NewSealer("device passphrase")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	t.Run("should round-trip and never repeat ciphertext", func(t *testing.T) {
		a, _ := s.Seal([]byte("jwt"))
		b, _ := s.Seal([]byte("jwt"))
		if a == b {
			t.Error("two seals of the same value must differ")
		}
		pt, err := s.Open(a)
		if err != nil || string(pt) != "jwt" {
			t.Errorf("want jwt, got %q %v", pt, err)
		}
	})

	t.Run("should refuse another passphrase", func(t *testing.T) {
		sealed, _ := s.Seal([]byte("jwt"))
		other, _ := NewSealer("other")
		if _, err := other.Open(sealed); !errors.Is(err, ErrOpen) {
			t.Errorf("expected ErrOpen, got %v", err)
		}
	})

	t.Run("should refuse garbage", func(t *testing.T) {
		for _, in := range []string{"", "not base64!", "AAAA"} {
			if _, err := s.Open(in); !errors.Is(err, ErrOpen) {
				t.Errorf("%q: expected ErrOpen, got %v", in, err)
			}
		}
	})

	t.Run("should require a passphrase", func(t *testing.T) {
		if _, err := NewSealer(""); err == nil {
			t.Error("expected an error")
		}
	})
}
