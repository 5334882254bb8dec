package kv

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(ctx, "crash_table", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutThenGet", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "crash_table", "mode", map[string]string{"value": "0"}))
		rec, err := s.Get(ctx, "crash_table", "mode")
		require.NoError(t, err)
		v, present, ok := rec.String("value")
		assert.True(t, present)
		assert.True(t, ok)
		assert.Equal(t, "0", v)
	})

	t.Run("PutReplacesFields", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "bank_table", "bank_amount", map[string]string{"value": "1000", "note": "x"}))
		require.NoError(t, s.Put(ctx, "bank_table", "bank_amount", map[string]string{"value": "990"}))
		rec, err := s.Get(ctx, "bank_table", "bank_amount")
		require.NoError(t, err)
		assert.Equal(t, "990", rec["value"])
		_, hasNote := rec["note"]
		assert.False(t, hasNote)
	})

	t.Run("TablesAreIsolated", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "inventory_table", "k", map[string]string{"value": "1"}))
		_, err := s.Get(ctx, "inventory_table_reg", "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutIf", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "crash_table", "cas", map[string]string{"value": "0"}))

		err := s.PutIf(ctx, "crash_table", "cas", map[string]string{"value": "1"}, Condition{Field: "value", Expected: "1"})
		assert.ErrorIs(t, err, ErrConditionFailed)

		require.NoError(t, s.PutIf(ctx, "crash_table", "cas", map[string]string{"value": "1"}, Condition{Field: "value", Expected: "0"}))
		rec, err := s.Get(ctx, "crash_table", "cas")
		require.NoError(t, err)
		assert.Equal(t, "1", rec["value"])
	})

	t.Run("PutIfMissingRecord", func(t *testing.T) {
		err := s.PutIf(ctx, "crash_table", "nope", map[string]string{"value": "1"}, Condition{Field: "value", Expected: "0"})
		assert.ErrorIs(t, err, ErrConditionFailed)
		_, err = s.Get(ctx, "crash_table", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ConcurrentPutIfSingleWinner", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "crash_table", "race", map[string]string{"value": "0"}))

		const n = 8
		var wg sync.WaitGroup
		wins := make(chan int, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.PutIf(ctx, "crash_table", "race", map[string]string{"value": strconv.Itoa(i + 1)}, Condition{Field: "value", Expected: "0"})
				if err == nil {
					wins <- i
				}
			}(i)
		}
		wg.Wait()
		close(wins)
		assert.Len(t, wins, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_SeedNonString(t *testing.T) {
	s := NewMemoryStore()
	s.Seed("crash_table", "mode", Record{"value": 1})

	rec, err := s.Get(context.Background(), "crash_table", "mode")
	require.NoError(t, err)
	_, present, ok := rec.String("value")
	assert.True(t, present)
	assert.False(t, ok)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "t", "k", map[string]string{"value": "0"}))

	rec, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	rec["value"] = "mutated"

	again, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	assert.Equal(t, "0", again["value"])
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kv.db")
	s, err := NewSQLiteStore(context.Background(), dbPath)
	require.NoError(t, err)
	defer s.Close()

	runStoreContract(t, s)
}

func TestSQLiteStore_NumberIsNotAString(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kv.db")
	s, err := NewSQLiteStore(context.Background(), dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`INSERT INTO kv_items (tbl, id, fields) VALUES ('crash_table', 'mode', '{"value": 1}')`)
	require.NoError(t, err)

	rec, err := s.Get(context.Background(), "crash_table", "mode")
	require.NoError(t, err)
	_, present, ok := rec.String("value")
	assert.True(t, present)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CRASHLOOP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CRASHLOOP_TEST_REDIS_ADDR not set")
	}
	s := NewRedisStore(addr, "", 15)
	defer s.Close()
	require.NoError(t, s.client.FlushDB(context.Background()).Err())

	runStoreContract(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CRASHLOOP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRASHLOOP_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.db.Exec(`DELETE FROM kv_items`)
	require.NoError(t, err)

	runStoreContract(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(ctx, Options{Backend: BackendSQLite})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: BackendRedis})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.ErrorContains(t, err, "unknown kv backend")
}
