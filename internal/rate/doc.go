// Package rate provides the Redis-backed admission check that runs before
// any credential or verification work.
//
// # Window semantics
//
// Fixed-window counters: INCR + PEXPIRE on first hit, executed as one Lua
// script so a crash between the two commands cannot leave an immortal
// counter. Key layout: arl:<class>:<key>.
//
// # What this package must NOT do
//
//   - Reset counters. Budgets recover only when the window ages out.
//   - Be imported outside the goBankAuth module.
package rate
