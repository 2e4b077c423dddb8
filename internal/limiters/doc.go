// Package limiters holds the account lockout state machine.
//
// The machine is pure: it maps a [LockState] and a clock reading to the next
// state. Persistence lives with the user store, which must apply the same
// transition in a single conditional write.
//
// # What this package must NOT do
//
//   - Touch Redis or SQL.
//   - Import goBankAuth or any sibling internal package.
package limiters
