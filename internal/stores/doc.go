// Package stores provides the Redis-backed store for pending one-time codes.
//
// # Design
//
// One Redis hash per (user, purpose) pair, so at most one pending code per
// pair exists by construction. Issue replaces the hash wholesale. Every
// mutation after issue is a Lua script: attempt accounting, the verified
// transition and rollback all execute atomically against the stored record
// id, so an issue racing a verify cannot resurrect a record. Key TTL sweeps
// abandoned records; read paths also treat expires_at as authoritative.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for pending codes.
// It does NOT generate codes, deliver them or flip user flags.
//
// # What this package must NOT do
//
//   - Import goBankAuth or any sibling internal package.
//   - Store or log plaintext codes. Only digests are persisted.
package stores
