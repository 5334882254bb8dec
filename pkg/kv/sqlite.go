package kv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-based implementation of the key-value store
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// _txlock=immediate takes the write lock at BEGIN so PutIf's read and
	// write happen under the same lock.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{sqlStore{
		db:        db,
		getQuery:  `SELECT fields FROM kv_items WHERE tbl = ? AND id = ?`,
		lockQuery: `SELECT fields FROM kv_items WHERE tbl = ? AND id = ?`,
		upsert: `INSERT INTO kv_items (tbl, id, fields) VALUES (?, ?, ?)
			ON CONFLICT(tbl, id) DO UPDATE SET fields = excluded.fields`,
		update: `UPDATE kv_items SET fields = ? WHERE tbl = ? AND id = ?`,
	}}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}
