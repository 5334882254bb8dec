package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/crashloop/pkg/ledger"
	"github.com/spf13/cobra"
)

var ledgerModes []string

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show bank and inventory balances",
	Long:  `Reads the bank balance and inventory count of each ledger mode so runs can be checked for double charges.`,
	Args:  cobra.NoArgs,
	RunE:  runLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().StringSliceVar(&ledgerModes, "mode", []string{"flowstate", "regular"}, "ledger modes to read")
}

type ledgerRow struct {
	Mode      ledger.Mode `json:"mode"`
	Inventory int         `json:"inventory"`
	Bank      int         `json:"bank"`
}

func runLedger(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	rows := make([]ledgerRow, 0, len(ledgerModes))
	for _, m := range ledgerModes {
		mode, err := ledger.ParseMode(m)
		if err != nil {
			return err
		}
		bal, err := ledger.Snapshot(ctx, rt.store, mode)
		if err != nil {
			return fmt.Errorf("%s ledger: %w", mode, err)
		}
		rows = append(rows, ledgerRow{Mode: mode, Inventory: bal.Inventory, Bank: bal.Bank})
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Mode", "Inventory", "Bank")
	for _, r := range rows {
		table.Append(string(r.Mode), fmt.Sprintf("%d", r.Inventory), fmt.Sprintf("%d", r.Bank))
	}
	table.Render()
	return nil
}
