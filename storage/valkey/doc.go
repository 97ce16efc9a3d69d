// Package valkey provides a Valkey-backed storage.CredentialStore.
//
// The store speaks the Redis protocol through github.com/redis/go-redis/v9,
// so it works against Valkey, Redis, and compatible services. Each
// credential is a single JSON value under
//
//	<prefix>credential:<provider>:<user id>
//
// and an upsert is one SET, which the server applies atomically.
//
// Example usage:
//
//	store, err := valkey.New(ctx, valkey.Config{Address: "localhost:6379"})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
package valkey
