package backup

import (
	"bytes"
	"strings"
	"testing"
)

// newTestEncryptor keeps scrypt cheap for tests.
func newTestEncryptor(t *testing.T, passphrase string) *AgeEncryptor {
	t.Helper()
	e, err := NewAgeEncryptor(passphrase)
	if err != nil {
		t.Fatalf("NewAgeEncryptor() error = %v", err)
	}
	return e.WithWorkFactor(10)
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	e := newTestEncryptor(t, "correct horse")
	plaintext := []byte("history, favorites, folders")

	var ciphertext bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	var got bytes.Buffer
	if err := e.Decrypt(&ciphertext, &got); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(got.Bytes(), plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got.Bytes(), plaintext)
	}
}

func TestAgeEncryptor_WrongPassphrase(t *testing.T) {
	var ciphertext bytes.Buffer
	if err := newTestEncryptor(t, "right").Encrypt(strings.NewReader("secret"), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	var got bytes.Buffer
	if err := newTestEncryptor(t, "wrong").Decrypt(&ciphertext, &got); err == nil {
		t.Error("Decrypt() with wrong passphrase should return error")
	}
	if got.Len() != 0 {
		t.Errorf("Decrypt() wrote %d bytes with wrong passphrase", got.Len())
	}
}

func TestAgeEncryptor_NotCiphertext(t *testing.T) {
	e := newTestEncryptor(t, "pass")
	if err := e.Decrypt(strings.NewReader("plain sqlite bytes"), &bytes.Buffer{}); err == nil {
		t.Error("Decrypt() of plaintext should return error")
	}
}

func TestNewAgeEncryptor_EmptyPassphrase(t *testing.T) {
	if _, err := NewAgeEncryptor(""); err == nil {
		t.Error("NewAgeEncryptor(\"\") expected error")
	}
}
