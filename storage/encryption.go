package storage

import (
	"fmt"

	"github.com/giantswarm/instagram-link/security"
)

// EncryptCredential returns a copy of cred with the access token sealed by enc.
// A nil or disabled encryptor returns an unmodified copy.
func EncryptCredential(enc *security.Encryptor, cred *Credential) (*Credential, error) {
	out := *cred
	if !enc.IsEnabled() {
		return &out, nil
	}
	sealed, err := enc.Encrypt(cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	out.AccessToken = sealed
	return &out, nil
}

// DecryptCredential opens the access token of cred in place.
func DecryptCredential(enc *security.Encryptor, cred *Credential) error {
	opened, err := enc.Decrypt(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt access token: %w", err)
	}
	cred.AccessToken = opened
	return nil
}
