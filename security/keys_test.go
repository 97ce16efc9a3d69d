package security

import (
	"bytes"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	secret := []byte("a-long-enough-shared-secret")

	k1, err := DeriveKey(secret, StateKeyInfo)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(k1) != KeySize {
		t.Errorf("len = %d, want %d", len(k1), KeySize)
	}

	k2, _ := DeriveKey(secret, StateKeyInfo)
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveKey() must be deterministic")
	}

	k3, _ := DeriveKey(secret, "another/purpose")
	if bytes.Equal(k1, k3) {
		t.Error("different info strings must yield different keys")
	}

	if _, err := DeriveKey([]byte("short"), StateKeyInfo); err == nil {
		t.Error("DeriveKey() with short secret should fail")
	}
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	k2, _ := GenerateKey()
	if len(k1) != KeySize {
		t.Errorf("len = %d, want %d", len(k1), KeySize)
	}
	if bytes.Equal(k1, k2) {
		t.Error("GenerateKey() returned the same key twice")
	}
}

func TestKeyBase64RoundTrip(t *testing.T) {
	key, _ := GenerateKey()
	decoded, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if !bytes.Equal(key, decoded) {
		t.Error("round trip changed the key")
	}
}

func TestKeyFromBase64_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "!!!"},
		{name: "wrong length", input: KeyToBase64([]byte("too-short"))},
		{name: "empty", input: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := KeyFromBase64(tt.input); err == nil {
				t.Error("KeyFromBase64() expected error")
			}
		})
	}
}
