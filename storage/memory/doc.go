// Package memory provides an in-memory CredentialStore.
//
// It is thread-safe and suitable for development, tests, and single-instance
// deployments where credentials do not need to survive a restart. Access
// tokens are sealed with the configured Encryptor, so a heap dump does not
// reveal them when encryption is enabled.
//
// Example usage:
//
//	store := memory.New()
//	store.SetEncryptor(enc)
//	err := store.UpsertCredential(ctx, cred)
package memory
