// Package ledger seeds and reads the demo ledger: the crash flag plus a
// bank balance and an inventory count stored either in the consistency
// library's tables (flowstate) or in plain tables (regular).
package ledger

import (
	"fmt"
	"strings"
)

// ValueField is the field every ledger record keeps its value in.
const ValueField = "value"

// Table names one seeded record: the table, the record id and the value
// written at bootstrap.
type Table struct {
	Alias   string
	Name    string
	Key     string
	Initial string
}

var (
	CrashTable        = Table{Alias: "crash", Name: "crash_table", Key: "mode", Initial: "0"}
	InventoryTable    = Table{Alias: "inventory", Name: "inventory_table", Key: "website_inventory", Initial: "100"}
	BankTable         = Table{Alias: "bank", Name: "bank_table", Key: "bank_amount", Initial: "1000"}
	InventoryTableReg = Table{Alias: "inventory-reg", Name: "inventory_table_reg", Key: "inventory", Initial: "100"}
	BankTableReg      = Table{Alias: "bank-reg", Name: "bank_table_reg", Key: "bank", Initial: "1000"}
)

// Tables returns every seeded table in bootstrap order.
func Tables() []Table {
	return []Table{CrashTable, InventoryTable, BankTable, InventoryTableReg, BankTableReg}
}

// LookupTable finds a table by alias ("bank-reg") or table name ("bank_table_reg").
func LookupTable(name string) (Table, bool) {
	for _, t := range Tables() {
		if strings.EqualFold(name, t.Alias) || strings.EqualFold(name, t.Name) {
			return t, true
		}
	}
	return Table{}, false
}

// Mode selects which pair of ledger tables a purchase goes through.
type Mode string

const (
	ModeFlowstate Mode = "flowstate"
	ModeRegular   Mode = "regular"
)

// ModeFor maps the harness's useFlowstate switch to a Mode.
func ModeFor(useFlowstate bool) Mode {
	if useFlowstate {
		return ModeFlowstate
	}
	return ModeRegular
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeFlowstate:
		return ModeFlowstate, nil
	case ModeRegular, "reg":
		return ModeRegular, nil
	default:
		return "", fmt.Errorf("invalid mode %q (valid: flowstate, regular)", s)
	}
}

// tablesFor returns the inventory and bank tables of a mode.
func tablesFor(mode Mode) (inventory, bank Table) {
	if mode == ModeRegular {
		return InventoryTableReg, BankTableReg
	}
	return InventoryTable, BankTable
}
