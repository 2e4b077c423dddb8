// Package sqlstore implements goBankAuth.UserStore on SQL databases through
// sqlx. SQLite (modernc.org/sqlite) and PostgreSQL (pgx stdlib) are
// supported; the schema is applied with goose from embedded migrations.
//
// Timestamps are stored as unix milliseconds so the lockout update is one
// portable conditional statement on both engines.
package sqlstore
