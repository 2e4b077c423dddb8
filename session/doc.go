// Package session provides the Redis-backed set of active refresh tokens
// per user.
//
// # Layout
//
// One sorted set per user: members are refresh-secret digests, scores are
// expiry instants in unix milliseconds. Expired members are pruned on every
// write and ignored on every read. The key itself expires with its
// longest-lived member.
//
// # Architecture boundaries
//
// This package owns set membership only. It does NOT mint tokens, parse
// JWTs or decide when to revoke. Those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goBankAuth or jwt (no upward imports).
//   - Store plaintext refresh secrets.
package session
