package secrets

import (
	"strings"
	"testing"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewEmailCipher(testKey())
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := c.Encrypt("editor@cabinetoffice.gov.uk")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if sealed == "" || strings.Contains(sealed, "editor@") {
		t.Fatalf("ciphertext leaks plaintext: %q", sealed)
	}
	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "editor@cabinetoffice.gov.uk" {
		t.Fatalf("round trip = %q", plain)
	}
}

func TestEncryptEmptyStaysEmpty(t *testing.T) {
	c, err := NewEmailCipher(testKey())
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := c.Encrypt("")
	if err != nil || sealed != "" {
		t.Fatalf("empty plaintext = %q, %v; want empty, nil", sealed, err)
	}
}

func TestDecryptOrPlaceholder(t *testing.T) {
	c, err := NewEmailCipher(testKey())
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	for _, bad := range []string{"", "   ", "not base64!!", "aGVsbG8="} {
		if got := c.DecryptOrPlaceholder(bad); got != Placeholder {
			t.Fatalf("DecryptOrPlaceholder(%q) = %q, want %q", bad, got, Placeholder)
		}
	}
	sealed, err := c.Encrypt("editor@cabinetoffice.gov.uk")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if got := c.DecryptOrPlaceholder(sealed); got != "editor@cabinetoffice.gov.uk" {
		t.Fatalf("valid ciphertext = %q", got)
	}
}

func TestDecryptWrongKeyGivesPlaceholder(t *testing.T) {
	c1, err := NewEmailCipher(testKey())
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	c2, err := NewEmailCipher([]byte("fedcba9876543210fedcba9876543210"))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := c1.Encrypt("editor@cabinetoffice.gov.uk")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if got := c2.DecryptOrPlaceholder(sealed); got != Placeholder {
		t.Fatalf("rotated key should render %q, got %q", Placeholder, got)
	}
}

func TestNewEmailCipherRejectsShortKey(t *testing.T) {
	if _, err := NewEmailCipher([]byte("short")); err == nil {
		t.Fatalf("short key must be rejected")
	}
}
