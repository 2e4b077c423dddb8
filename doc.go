// Package goBankAuth is the account authentication and one-time-code
// verification core of a mobile-banking backend: credential checks with
// progressive lockout, time-boxed numeric codes with bounded retry,
// JWT access tokens with revocable opaque refresh tokens, and per-endpoint
// request throttling.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goBankAuth is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] persistence contract and value types. Redis-backed code
// records, rate-limit counters and refresh-token sets live under internal/
// and session/ and are reached only through Engine methods.
//
// # What this package must NOT do
//
//   - Reveal whether an account exists from login, forgot-password or
//     send-verification responses.
//   - Persist a plaintext code, password or refresh secret.
//   - Leave a code live after its delivery failed.
//   - Import any sub-package that re-imports goBankAuth (no import cycles).
//
// # Concurrency contract
//
// Every mutation of a code record, refresh set or rate counter is a single
// Redis script; every mutation of a user's lockout state is a single
// conditional store update. The engine keeps no per-request state in memory.
package goBankAuth
