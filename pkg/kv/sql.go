package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Records live in one generic table; fields are stored as a JSON object.
type sqlStore struct {
	db        *sql.DB
	getQuery  string
	upsert    string
	lockQuery string
	update    string
}

const kvSchema = `
	CREATE TABLE IF NOT EXISTS kv_items (
		tbl TEXT NOT NULL,
		id TEXT NOT NULL,
		fields TEXT NOT NULL,
		PRIMARY KEY (tbl, id)
	);
`

func (s *sqlStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, kvSchema)
	return err
}

func decodeFields(raw string) (Record, error) {
	rec := Record{}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return rec, nil
}

func encodeFields(fields map[string]string) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(data), nil
}

func (s *sqlStore) Get(ctx context.Context, table, key string) (Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.getQuery, table, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return decodeFields(raw)
}

func (s *sqlStore) Put(ctx context.Context, table, key string, fields map[string]string) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.upsert, table, key, raw); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *sqlStore) PutIf(ctx context.Context, table, key string, fields map[string]string, cond Condition) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, s.lockQuery, table, key).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConditionFailed
	}
	if err != nil {
		return fmt.Errorf("failed to read %s/%s: %w", table, key, err)
	}

	rec, err := decodeFields(current)
	if err != nil {
		return err
	}
	if !satisfies(rec, cond) {
		return ErrConditionFailed
	}

	if _, err := tx.ExecContext(ctx, s.update, raw, table, key); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", table, key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
