// Package kv is the key-value boundary the harness reads and mutates: the
// crash flag and the ledger records. Every backend keys records by a
// (table, id) pair and stores string fields.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned by PutIf when the guard does not hold.
	ErrConditionFailed = errors.New("conditional write failed")
)

// KeyAttribute names the hash key attribute of every table.
const KeyAttribute = "id"

// Record is the set of fields stored under a key, excluding the key itself.
// Values written through Store are strings; a backend may surface other
// types when the stored data was written by someone else.
type Record map[string]any

// String returns field as a string. ok is false when the field is absent
// or not a string.
func (r Record) String(field string) (value string, present bool, ok bool) {
	v, present := r[field]
	if !present {
		return "", false, false
	}
	s, ok := v.(string)
	return s, true, ok
}

// Condition guards a PutIf: the stored Field must currently equal Expected.
type Condition struct {
	Field    string
	Expected string
}

// Store defines the key-value operations used by the harness.
// All backends implement this interface.
type Store interface {
	Get(ctx context.Context, table, key string) (Record, error)
	Put(ctx context.Context, table, key string, fields map[string]string) error
	// PutIf writes fields only if the existing record satisfies cond.
	// A missing record never satisfies a condition.
	PutIf(ctx context.Context, table, key string, fields map[string]string, cond Condition) error
	Close() error
}

func toRecord(fields map[string]string) Record {
	rec := make(Record, len(fields))
	for k, v := range fields {
		rec[k] = v
	}
	return rec
}

func satisfies(rec Record, cond Condition) bool {
	v, _, ok := rec.String(cond.Field)
	return ok && v == cond.Expected
}
