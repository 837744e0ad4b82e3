// Package sqlite is the SQLite-backed persistence layer for the whole order
// core. Every bounded context's repository port is implemented by the one
// Store so that cross-entity writes (cart conversion, payment completion plus
// order confirmation) share a single transaction.
//
// WAL mode is enabled on Open so readers never block the writer; the pool is
// capped at one open connection because SQLite performs best with a single
// writer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Register the pure-Go SQLite driver. modernc.org/sqlite avoids CGO,
	// keeping builds trivial in Docker (Alpine).
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	// "sqlite", not "sqlite3", for the modernc driver.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// execTx runs fn inside a transaction, rolling back on any error. SQLite
// transactions are serializable, which is what the state-machine writes
// rely on.
func (s *Store) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// isUniqueViolation sniffs driver error text for unique-constraint failures;
// the races that produce them (concurrent cart creation, replayed webhook
// event ids) are handled by re-reading.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "2067")
}
