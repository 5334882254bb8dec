package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/crashloop/pkg/ledger"
	"github.com/spf13/cobra"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap [all|crash|inventory|bank|inventory-reg|bank-reg]...",
	Short: "Seed the crash flag and ledger records",
	Long: `Writes the initial records: crash_table/mode=0, inventory_table/website_inventory=100,
bank_table/bank_amount=1000, inventory_table_reg/inventory=100 and bank_table_reg/bank=1000.
Existing records are overwritten. Tables themselves must already exist.`,
	ValidArgs: []string{"all", "crash", "inventory", "bank", "inventory-reg", "bank-reg"},
	RunE:      runBootstrap,
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	tables, err := bootstrapTables(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	b := ledger.NewBootstrapper(rt.store, rt.logger, rt.cfg.KV.CrashTable)
	for _, t := range tables {
		if err := b.Create(ctx, t); err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), tables)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Table", "Key", "Value")
	for _, t := range tables {
		table.Append(t.Name, t.Key, t.Initial)
	}
	table.Render()
	return nil
}

func bootstrapTables(args []string) ([]ledger.Table, error) {
	if len(args) == 0 {
		return ledger.Tables(), nil
	}
	var out []ledger.Table
	for _, a := range args {
		if a == "all" {
			return ledger.Tables(), nil
		}
		t, ok := ledger.LookupTable(a)
		if !ok {
			return nil, fmt.Errorf("unknown table %q", a)
		}
		out = append(out, t)
	}
	return out, nil
}
