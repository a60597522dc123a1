// internal/database/database.go
//
// sqlx connection helpers.
//
// Context
// -------
// WattleOS talks to one MySQL-protocol server through two credentials:
//
//	app   – unprivileged; row-level-secured CRUD for request handlers.
//	audit – elevated; the ONLY credential with INSERT on audit_log, and
//	        deliberately without UPDATE or DELETE grants on it.
//
// Keeping the handles apart is what makes the audit trail append-only:
// a request acting as a user can never touch the log through the pool it
// was given.  Both helpers Ping before returning so callers fail fast
// during bootstrap.
package database

import (
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Open returns a *sqlx.DB with sane defaults: 15 max open, 5 idle, and a
// 30-minute connection lifetime.  Used for the application pool.
func Open(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(dsn, 15, 5)
}

// OpenAudit returns a deliberately small pool for the elevated audit
// credential.  Audit writes are short INSERTs; two connections suffice.
func OpenAudit(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(dsn, 4, 2)
}

// OpenWithOptions lets callers tune maxOpen and maxIdle per pool.
func OpenWithOptions(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
