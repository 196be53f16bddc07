package creds

import (
	"strings"
	"testing"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("client-secret-value")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, "sealed:") {
		t.Errorf("sealed value missing prefix: %q", sealed)
	}
	if strings.Contains(sealed, "client-secret-value") {
		t.Error("sealed value leaks plaintext")
	}

	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "client-secret-value" {
		t.Errorf("Open = %q, want original plaintext", plain)
	}
}

func TestSealer_NonceVaries(t *testing.T) {
	s, err := NewSealer("pass")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two seals of the same plaintext must differ")
	}
}

func TestSealer_TamperDetected(t *testing.T) {
	s, err := NewSealer("pass")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, _ := s.Seal("secret")

	// Flip one character in the ciphertext portion.
	tampered := []byte(sealed)
	i := len(tampered) - 2
	if tampered[i] == 'A' {
		tampered[i] = 'B'
	} else {
		tampered[i] = 'A'
	}

	if _, err := s.Open(string(tampered)); err == nil {
		t.Fatal("expected error opening tampered value")
	}
}

func TestSealer_WrongPassphrase(t *testing.T) {
	a, _ := NewSealer("one")
	b, _ := NewSealer("two")

	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("expected error opening with a different passphrase")
	}
}

func TestSealer_NilPassesThrough(t *testing.T) {
	s, err := NewSealer("")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	if s != nil {
		t.Fatal("empty passphrase should yield a nil sealer")
	}

	// nil Sealer is a valid pass-through.
	out, err := s.Seal("plain")
	if err != nil || out != "plain" {
		t.Errorf("nil Seal = %q, %v", out, err)
	}
	out, err = s.Open("plain")
	if err != nil || out != "plain" {
		t.Errorf("nil Open = %q, %v", out, err)
	}
}

func TestSealer_OpensLegacyPlaintext(t *testing.T) {
	// Records written before a passphrase was configured carry no
	// prefix and must load unchanged.
	s, err := NewSealer("pass")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	out, err := s.Open("legacy-plaintext-secret")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if out != "legacy-plaintext-secret" {
		t.Errorf("Open = %q, want legacy value unchanged", out)
	}
}

func TestSealer_EmptyStaysEmpty(t *testing.T) {
	s, err := NewSealer("pass")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	out, err := s.Seal("")
	if err != nil || out != "" {
		t.Errorf("Seal(\"\") = %q, %v", out, err)
	}
}
