package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/instagram-link/security"
)

func validCredential() *Credential {
	return &Credential{
		UserID:         "user-1",
		Provider:       "instagram",
		ProviderUserID: "17841400000000001",
		AccessToken:    "IGQVJ-long",
		TokenExpiresAt: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCredential_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Credential)
		wantErr bool
	}{
		{"valid", func(*Credential) {}, false},
		{"missing user", func(c *Credential) { c.UserID = "" }, true},
		{"missing provider", func(c *Credential) { c.Provider = "" }, true},
		{"missing provider user", func(c *Credential) { c.ProviderUserID = "" }, true},
		{"missing token", func(c *Credential) { c.AccessToken = "" }, true},
		{"missing expiry", func(c *Credential) { c.TokenExpiresAt = time.Time{} }, true},
		{"oversized user", func(c *Credential) { c.UserID = strings.Repeat("u", MaxIDLength+1) }, true},
		{"oversized token", func(c *Credential) { c.AccessToken = strings.Repeat("t", MaxTokenLength+1) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCredential()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Validate() error = %v, want ErrInvalidCredential", err)
			}
		})
	}

	var nilCred *Credential
	if err := nilCred.Validate(); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("nil Validate() error = %v", err)
	}
}

func TestCredential_IsExpired(t *testing.T) {
	c := validCredential()
	if c.IsExpired(c.TokenExpiresAt.Add(-time.Second)) {
		t.Error("IsExpired() = true before expiry")
	}
	if !c.IsExpired(c.TokenExpiresAt) {
		t.Error("IsExpired() = false at expiry")
	}
}

func TestEncryptCredential(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	orig := validCredential()
	sealed, err := EncryptCredential(enc, orig)
	if err != nil {
		t.Fatalf("EncryptCredential() error = %v", err)
	}
	if sealed.AccessToken == orig.AccessToken {
		t.Error("access token was not encrypted")
	}
	if orig.AccessToken != "IGQVJ-long" {
		t.Error("EncryptCredential() modified its input")
	}

	if err := DecryptCredential(enc, sealed); err != nil {
		t.Fatalf("DecryptCredential() error = %v", err)
	}
	if sealed.AccessToken != orig.AccessToken {
		t.Errorf("decrypted = %q, want %q", sealed.AccessToken, orig.AccessToken)
	}
}

func TestEncryptCredential_Disabled(t *testing.T) {
	orig := validCredential()
	out, err := EncryptCredential(nil, orig)
	if err != nil {
		t.Fatalf("EncryptCredential(nil) error = %v", err)
	}
	if out == orig || out.AccessToken != orig.AccessToken {
		t.Error("EncryptCredential(nil) should return an unmodified copy")
	}
	if err := DecryptCredential(nil, out); err != nil {
		t.Errorf("DecryptCredential(nil) error = %v", err)
	}
}
