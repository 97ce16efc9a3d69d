// Package providers defines the token exchange contract used by the link flow.
//
// A TokenExchanger performs two dependent calls against a provider: the
// authorization-code exchange that yields a short-lived ProviderToken, and the
// long-lived exchange that yields the LongLivedToken that is persisted.
// Both hops fail with ErrExchangeFailed; when the provider answered with an
// error body the chain also contains an *oauth2.RetrieveError carrying the
// provider's error code and message.
//
// Implementations are provided in subpackages:
//   - providers/instagram: Instagram Login token endpoints
//   - providers/mock: Mock exchanger for testing
package providers
