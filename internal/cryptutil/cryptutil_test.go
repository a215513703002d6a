package cryptutil

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret-value")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	want := Credentials{Username: "alice@example.com", Password: "hunter2"}
	blob, err := c.Encrypt(want)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	c, _ := NewCipher("test-secret-value")
	creds := Credentials{Username: "a", Password: "b"}

	blob1, _ := c.Encrypt(creds)
	blob2, _ := c.Encrypt(creds)
	if string(blob1) == string(blob2) {
		t.Fatal("expected distinct ciphertexts for identical plaintext (random nonce)")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c1, _ := NewCipher("key-one")
	c2, _ := NewCipher("key-two")

	blob, err := c1.Encrypt(Credentials{Username: "a", Password: "b"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Decrypt(blob); err == nil {
		t.Fatal("expected decrypt failure with wrong key")
	}
}

func TestDecryptTruncatedFails(t *testing.T) {
	c, _ := NewCipher("test-secret-value")
	if _, err := c.Decrypt([]byte("short")); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}

func TestNewCipherRejectsEmptySecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
