// Package internal contains helpers that are private to goBankAuth:
// secure code generation and the refresh token codec.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: lockout policy applied to the user record
//   - normalize: canonical email and phone forms
//   - rate: Redis fixed-window admission per endpoint class
//   - stores: Redis verification-code store with atomic attempt accounting
//
// # What this package must NOT do
//
//   - Export types that appear in the public goBankAuth API.
//   - Be imported by any package outside the goBankAuth module.
package internal
