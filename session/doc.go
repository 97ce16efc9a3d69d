// Package session resolves the first-party session credential carried by the
// callback request into an authenticated user.
//
// Two resolvers are provided. RemoteResolver asks the identity service to
// validate the credential, matching how the service itself checks sessions.
// JWTResolver verifies the identity service's HS256 access token locally with
// the shared JWT secret, avoiding a network round trip.
//
// Both report ErrNoSession for an empty credential and ErrInvalidSession for
// anything that cannot be resolved.
package session
