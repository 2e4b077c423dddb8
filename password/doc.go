// Package password implements password hashing, verification and the
// composition policy for new passwords.
//
// # Output format
//
// New hashes are argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Chain] also verifies bcrypt hashes carried over from imported accounts
// and reports them as needing an upgrade, so they are re-hashed as argon2id
// on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goBankAuth package.
//   - Log plaintext passwords.
package password
