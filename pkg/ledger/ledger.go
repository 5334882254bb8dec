package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/psantana5/crashloop/pkg/kv"
	"github.com/psantana5/crashloop/pkg/logging"
)

var (
	// ErrMalformedBalance means a ledger record does not hold an integer.
	ErrMalformedBalance = errors.New("malformed ledger value")
	// ErrMalformedResponse means a purchase response could not be decoded.
	ErrMalformedResponse = errors.New("malformed purchase response")
)

// Balances is a point-in-time view of the ledger.
type Balances struct {
	Inventory int `json:"inventory" yaml:"inventory"`
	Bank      int `json:"bank" yaml:"bank"`
}

// Bootstrapper writes the initial ledger records. It does not create
// table schemas; the store must already accept writes to each table.
type Bootstrapper struct {
	store      kv.Store
	logger     *logging.Logger
	crashTable string
}

// NewBootstrapper creates a bootstrapper. An empty crashTable keeps
// CrashTable.Name.
func NewBootstrapper(store kv.Store, logger *logging.Logger, crashTable string) *Bootstrapper {
	if logger == nil {
		logger = logging.Nop()
	}
	if crashTable == "" {
		crashTable = CrashTable.Name
	}
	return &Bootstrapper{store: store, logger: logger, crashTable: crashTable}
}

// Create seeds one table's record with its initial value.
func (b *Bootstrapper) Create(ctx context.Context, t Table) error {
	name := t.Name
	if t.Alias == CrashTable.Alias {
		name = b.crashTable
	}
	if err := b.store.Put(ctx, name, t.Key, map[string]string{ValueField: t.Initial}); err != nil {
		return fmt.Errorf("failed to seed %s/%s: %w", name, t.Key, err)
	}
	b.logger.Info("Seeded table", map[string]interface{}{"table": name, "key": t.Key, "value": t.Initial})
	return nil
}

func (b *Bootstrapper) CreateCrashTable(ctx context.Context) error {
	return b.Create(ctx, CrashTable)
}

func (b *Bootstrapper) CreateInventoryTable(ctx context.Context) error {
	return b.Create(ctx, InventoryTable)
}

func (b *Bootstrapper) CreateBankTable(ctx context.Context) error {
	return b.Create(ctx, BankTable)
}

func (b *Bootstrapper) CreateInventoryTableReg(ctx context.Context) error {
	return b.Create(ctx, InventoryTableReg)
}

func (b *Bootstrapper) CreateBankTableReg(ctx context.Context) error {
	return b.Create(ctx, BankTableReg)
}

// CreateAll seeds every table in order and stops at the first failure.
func (b *Bootstrapper) CreateAll(ctx context.Context) error {
	for _, t := range Tables() {
		if err := b.Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot reads the inventory and bank records of mode.
func Snapshot(ctx context.Context, store kv.Store, mode Mode) (*Balances, error) {
	invTable, bankTable := tablesFor(mode)

	inventory, err := readInt(ctx, store, invTable)
	if err != nil {
		return nil, err
	}
	bank, err := readInt(ctx, store, bankTable)
	if err != nil {
		return nil, err
	}
	return &Balances{Inventory: inventory, Bank: bank}, nil
}

func readInt(ctx context.Context, store kv.Store, t Table) (int, error) {
	rec, err := store.Get(ctx, t.Name, t.Key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s/%s: %w", t.Name, t.Key, err)
	}

	switch v := rec[ValueField].(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s/%s=%q", ErrMalformedBalance, t.Name, t.Key, v)
		}
		return n, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s/%s=%s", ErrMalformedBalance, t.Name, t.Key, v)
		}
		return int(n), nil
	case nil:
		return 0, fmt.Errorf("%w: %s/%s has no %s field", ErrMalformedBalance, t.Name, t.Key, ValueField)
	default:
		return 0, fmt.Errorf("%w: %s/%s has type %T", ErrMalformedBalance, t.Name, t.Key, v)
	}
}

// ParsePurchaseResponse decodes the purchase function's reply. The function
// serializes its result twice, so the payload is usually a JSON string
// holding a JSON object; a plain object is accepted too.
func ParsePurchaseResponse(payload string) (*Balances, error) {
	data := []byte(strings.TrimSpace(payload))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		data = []byte(inner)
	}

	var raw struct {
		Inventory *json.Number `json:"inventory"`
		Bank      *json.Number `json:"bank"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Inventory == nil || raw.Bank == nil {
		return nil, fmt.Errorf("%w: inventory and bank are required", ErrMalformedResponse)
	}

	inventory, err := raw.Inventory.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: inventory: %v", ErrMalformedResponse, err)
	}
	bank, err := raw.Bank.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: bank: %v", ErrMalformedResponse, err)
	}
	return &Balances{Inventory: int(inventory), Bank: int(bank)}, nil
}
