package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptorRejectsBadKeys(t *testing.T) {
	if _, err := NewAESEncryptor(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewAESEncryptor("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := NewAESEncryptor(short); err == nil {
		t.Error("expected error for short key")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	plaintext := "a-very-secret-twitch-access-token"
	stored, err := EncryptString(enc, plaintext)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if stored == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}
	got, err := DecryptString(enc, stored)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if got != plaintext {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestEmptyStringPassesThrough(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	stored, err := EncryptString(enc, "")
	if err != nil || stored != "" {
		t.Errorf("EncryptString(\"\") = %q, %v", stored, err)
	}
	got, err := DecryptString(enc, "")
	if err != nil || got != "" {
		t.Errorf("DecryptString(\"\") = %q, %v", got, err)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	stored, err := EncryptString(enc, "refresh-token")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(stored)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)
	if _, err := DecryptString(enc, tampered); err == nil {
		t.Error("expected decryption failure for tampered ciphertext")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc1, _ := NewAESEncryptor(testKey(t))
	enc2, _ := NewAESEncryptor(testKey(t))
	stored, err := EncryptString(enc1, "token")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := DecryptString(enc2, stored); err == nil {
		t.Error("expected decryption failure with wrong key")
	}
}
