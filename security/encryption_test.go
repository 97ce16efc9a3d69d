package security

import (
	"strings"
	"testing"
)

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name        string
		key         []byte
		wantErr     bool
		wantEnabled bool
	}{
		{name: "nil key disables", key: nil, wantEnabled: false},
		{name: "valid key", key: make([]byte, KeySize), wantEnabled: true},
		{name: "short key", key: make([]byte, 16), wantErr: true},
		{name: "long key", key: make([]byte, 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && enc.IsEnabled() != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnabled)
			}
		})
	}
}

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	key, _ := GenerateKey()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	for _, plaintext := range []string{"IGQVJ-long-lived-token", "", strings.Repeat("x", 4096)} {
		sealed, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if !strings.HasPrefix(sealed, encryptedPrefix) {
			t.Errorf("sealed value %q lacks prefix", sealed)
		}
		if plaintext != "" && strings.Contains(sealed, plaintext) {
			t.Error("sealed value leaks plaintext")
		}

		opened, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if opened != plaintext {
			t.Errorf("Decrypt() = %q, want %q", opened, plaintext)
		}
	}

	a, _ := enc.Encrypt("same")
	b, _ := enc.Encrypt("same")
	if a == b {
		t.Error("nonces must make repeated encryptions differ")
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	for name, enc := range map[string]*Encryptor{"zero": {}, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			out, err := enc.Encrypt("token")
			if err != nil || out != "token" {
				t.Errorf("Encrypt() = %q, %v; want passthrough", out, err)
			}
			out, err = enc.Decrypt("token")
			if err != nil || out != "token" {
				t.Errorf("Decrypt() = %q, %v; want passthrough", out, err)
			}
			if _, err := enc.Decrypt(encryptedPrefix + "AAAA"); err == nil {
				t.Error("Decrypt() of sealed value without key should fail")
			}
		})
	}
}

func TestEncryptor_PlaintextPassthroughWhenEnabled(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	out, err := enc.Decrypt("legacy-plaintext-token")
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if out != "legacy-plaintext-token" {
		t.Errorf("Decrypt() = %q, want passthrough", out)
	}
}

func TestEncryptor_Decrypt_Invalid(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	other, _ := GenerateKey()
	otherEnc, _ := NewEncryptor(other)
	foreign, _ := otherEnc.Encrypt("secret")

	tests := []struct {
		name  string
		input string
	}{
		{name: "bad base64", input: encryptedPrefix + "!!!"},
		{name: "too short", input: encryptedPrefix + "AAAA"},
		{name: "wrong key", input: foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.input); err == nil {
				t.Error("Decrypt() expected error")
			}
		})
	}
}
