package security

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestEncryptorRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	if !enc.IsEnabled() {
		t.Fatal("IsEnabled() = false with a 32-byte key")
	}

	plaintext := "the-access-token-value"
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == plaintext {
		t.Error("ciphertext equals plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptorNonceUniqueness(t *testing.T) {
	key := make([]byte, 32)
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatal(err)
	}

	a, err := enc.Encrypt("same input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Encrypt("same input")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same input produced identical ciphertext")
	}
}

func TestEncryptorBadKeyLength(t *testing.T) {
	if _, err := NewEncryptor(make([]byte, 16)); err == nil {
		t.Error("expected error for 16-byte key")
	}
	if _, err := NewEncryptor(make([]byte, 64)); err == nil {
		t.Error("expected error for 64-byte key")
	}
}

func TestEncryptorDisabled(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatal(err)
	}
	if enc.IsEnabled() {
		t.Error("IsEnabled() = true with no key")
	}

	out, err := enc.Encrypt("pass-through")
	if err != nil {
		t.Fatal(err)
	}
	if out != "pass-through" {
		t.Errorf("disabled Encrypt() = %q, want pass-through", out)
	}
	back, err := enc.Decrypt(out)
	if err != nil {
		t.Fatal(err)
	}
	if back != "pass-through" {
		t.Errorf("disabled Decrypt() = %q, want pass-through", back)
	}
}

func TestEncryptorTamperDetection(t *testing.T) {
	key := make([]byte, 32)
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, err := enc.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	// Flip a character in the encoded ciphertext.
	tampered := []byte(ciphertext)
	if tampered[len(tampered)-2] == 'A' {
		tampered[len(tampered)-2] = 'B'
	} else {
		tampered[len(tampered)-2] = 'A'
	}
	if _, err := enc.Decrypt(string(tampered)); err == nil {
		t.Error("expected authentication failure on tampered ciphertext")
	}

	if _, err := enc.Decrypt("not-base64!!!"); err == nil {
		t.Error("expected error on malformed ciphertext")
	}
	if _, err := enc.Decrypt(""); err == nil {
		t.Error("expected error on empty ciphertext")
	}
}

func TestNewEncryptorFromSecret(t *testing.T) {
	enc, err := NewEncryptorFromSecret("a deployment secret")
	if err != nil {
		t.Fatalf("NewEncryptorFromSecret() error = %v", err)
	}
	if !enc.IsEnabled() {
		t.Fatal("IsEnabled() = false with a secret")
	}

	ciphertext, err := enc.Encrypt("payload")
	if err != nil {
		t.Fatal(err)
	}

	// Derivation is deterministic: a second encryptor from the same secret
	// can decrypt.
	enc2, err := NewEncryptorFromSecret("a deployment secret")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc.key, enc2.key) {
		t.Error("same secret derived different keys")
	}
	out, err := enc2.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if out != "payload" {
		t.Errorf("Decrypt() = %q, want payload", out)
	}

	// Different secrets derive different keys.
	enc3, err := NewEncryptorFromSecret("another secret")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(enc.key, enc3.key) {
		t.Error("different secrets derived the same key")
	}
}

func TestNewEncryptorFromSecretEmpty(t *testing.T) {
	enc, err := NewEncryptorFromSecret("")
	if err != nil {
		t.Fatal(err)
	}
	if enc.IsEnabled() {
		t.Error("empty secret must yield a disabled encryptor")
	}
}

func TestEncryptLargePayload(t *testing.T) {
	enc, err := NewEncryptorFromSecret("s")
	if err != nil {
		t.Fatal(err)
	}

	payload := strings.Repeat("x", 64*1024)
	ciphertext, err := enc.Encrypt(payload)
	if err != nil {
		t.Fatal(err)
	}
	out, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if out != payload {
		t.Error("large payload round trip mismatch")
	}
}
