package kv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig configures the PostgreSQL backend
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects to PostgreSQL and ensures the kv_items table exists
func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{sqlStore{
		db:        db,
		getQuery:  `SELECT fields FROM kv_items WHERE tbl = $1 AND id = $2`,
		lockQuery: `SELECT fields FROM kv_items WHERE tbl = $1 AND id = $2 FOR UPDATE`,
		upsert: `INSERT INTO kv_items (tbl, id, fields) VALUES ($1, $2, $3)
			ON CONFLICT (tbl, id) DO UPDATE SET fields = EXCLUDED.fields`,
		update: `UPDATE kv_items SET fields = $1 WHERE tbl = $2 AND id = $3`,
	}}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}
