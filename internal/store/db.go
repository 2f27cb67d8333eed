package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for one project's livechat.db.
type DB struct {
	*sql.DB

	// writeMu spans commit and notify so listeners see writes in commit order.
	writeMu   sync.Mutex
	mu        sync.RWMutex
	listeners []ChangeListener
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Transactions take the write lock on BEGIN so that read-modify-write merges
// of the same key never interleave.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DB{DB: db}, nil
}

// withTx runs fn in a transaction and commits it. Changes collected by fn are
// delivered to listeners only after a successful commit, and before the next
// transaction starts. Listeners must not write to the store.
func (db *DB) withTx(fn func(tx *sql.Tx, changes *[]Change) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var changes []Change
	if err := fn(tx, &changes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.notify(changes)
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
