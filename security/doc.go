// Package security provides the security primitives of the account-link flow:
// signed CSRF state, token encryption at rest, audit logging, per-client rate
// limiting, client IP extraction, request IDs and response headers.
//
// # CSRF state
//
// StateCodec issues and verifies the opaque state value that travels through
// the Instagram authorize redirect. A state is an HS256 JWT with a fixed issuer
// and audience, a unique ID and a short expiry (10 minutes by default). The
// signing key is derived from a configured secret with HKDF-SHA256:
//
//	key, err := security.DeriveKey([]byte(secret), security.StateKeyInfo)
//	codec, err := security.NewStateCodec(key)
//	state, err := codec.Issue(userID)
//	ok := codec.Verify(state)
//
// Verification checks the HMAC before any claim, so a forged state and an
// expired one fail the same way from the caller's point of view.
//
// # Encryption at rest
//
// Encryptor seals access tokens with AES-256-GCM before a credential store
// writes them. A nil or disabled Encryptor passes values through unchanged.
//
// # Audit logging
//
// Auditor writes security events through slog with user identifiers hashed.
package security
