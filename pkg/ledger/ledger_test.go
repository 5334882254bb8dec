package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/psantana5/crashloop/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAll(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	b := NewBootstrapper(store, nil, "")

	require.NoError(t, b.CreateAll(ctx))

	expected := map[string][2]string{
		"crash_table":         {"mode", "0"},
		"inventory_table":     {"website_inventory", "100"},
		"bank_table":          {"bank_amount", "1000"},
		"inventory_table_reg": {"inventory", "100"},
		"bank_table_reg":      {"bank", "1000"},
	}
	for table, kvPair := range expected {
		rec, err := store.Get(ctx, table, kvPair[0])
		require.NoError(t, err, table)
		assert.Equal(t, kvPair[1], rec[ValueField], table)
	}
}

func TestCreate_CustomCrashTable(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	require.NoError(t, NewBootstrapper(store, nil, "chaos_flags").CreateCrashTable(ctx))

	rec, err := store.Get(ctx, "chaos_flags", "mode")
	require.NoError(t, err)
	assert.Equal(t, "0", rec[ValueField])

	_, err = store.Get(ctx, "crash_table", "mode")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, NewBootstrapper(store, nil, "").CreateAll(ctx))
	require.NoError(t, store.Put(ctx, "bank_table_reg", "bank", map[string]string{"value": "990"}))

	bal, err := Snapshot(ctx, store, ModeFlowstate)
	require.NoError(t, err)
	assert.Equal(t, Balances{Inventory: 100, Bank: 1000}, *bal)

	bal, err = Snapshot(ctx, store, ModeRegular)
	require.NoError(t, err)
	assert.Equal(t, Balances{Inventory: 100, Bank: 990}, *bal)
}

func TestSnapshot_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Snapshot(ctx, kv.NewMemoryStore(), ModeFlowstate)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	store := kv.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "inventory_table", "website_inventory", map[string]string{"value": "lots"}))
	_, err = Snapshot(ctx, store, ModeFlowstate)
	assert.ErrorIs(t, err, ErrMalformedBalance)

	store = kv.NewMemoryStore()
	store.Seed("inventory_table", "website_inventory", kv.Record{"value": json.Number("42")})
	require.NoError(t, store.Put(ctx, "bank_table", "bank_amount", map[string]string{"value": "7"}))
	bal, err := Snapshot(ctx, store, ModeFlowstate)
	require.NoError(t, err)
	assert.Equal(t, 42, bal.Inventory)
}

func TestParsePurchaseResponse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *Balances
	}{
		{"double encoded", `"{\"inventory\":99,\"bank\":990}"`, &Balances{Inventory: 99, Bank: 990}},
		{"single encoded", `{"inventory":98,"bank":980}`, &Balances{Inventory: 98, Bank: 980}},
		{"string numbers", `{"inventory":"97","bank":"970"}`, &Balances{Inventory: 97, Bank: 970}},
		{"empty", ``, nil},
		{"missing bank", `{"inventory":1}`, nil},
		{"not json", `crashed`, nil},
		{"broken inner", `"{inventory"`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePurchaseResponse(tt.payload)
			if tt.want == nil {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupTableAndMode(t *testing.T) {
	tbl, ok := LookupTable("bank-reg")
	require.True(t, ok)
	assert.Equal(t, "bank_table_reg", tbl.Name)

	tbl, ok = LookupTable("inventory_table")
	require.True(t, ok)
	assert.Equal(t, "website_inventory", tbl.Key)

	_, ok = LookupTable("orders")
	assert.False(t, ok)

	m, err := ParseMode("Regular")
	require.NoError(t, err)
	assert.Equal(t, ModeRegular, m)
	_, err = ParseMode("eventual")
	assert.Error(t, err)

	assert.Equal(t, ModeFlowstate, ModeFor(true))
	assert.Equal(t, ModeRegular, ModeFor(false))
}
