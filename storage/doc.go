// Package storage defines the credential store used to persist linked
// third-party accounts.
//
// Backends live in subpackages:
//   - storage/memory: in-process map, for development and tests
//   - storage/sqlite: single-file SQLite database (modernc.org/sqlite)
//   - storage/postgres: PostgreSQL through a pgx connection pool
//   - storage/valkey: Valkey or Redis through go-redis
//
// Every backend upserts with a single statement or command, so a replaced
// credential is never observed half-written. Access tokens can be sealed at
// rest with a security.Encryptor via EncryptCredential and DecryptCredential.
// NewInstrumentedStore adds spans and metrics around any backend.
package storage
