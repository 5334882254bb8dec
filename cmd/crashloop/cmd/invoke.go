package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/crashloop/pkg/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var invokeMode string

var invokeCmd = &cobra.Command{
	Use:   "invoke [target]",
	Short: "Invoke a function until it succeeds",
	Long: `Invokes the target (a Lambda function name or ARN, or an http(s) URL) and
retries every crash or transport failure after a fixed delay, reusing the same
request id, until the function answers. Without a target the purchase function
of --mode is used. Ctrl-C abandons the loop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInvoke,
}

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().Duration("delay", 0, "delay between attempts (default 5s)")
	invokeCmd.Flags().Int("max-attempts", 0, "give up after this many attempts (0 = never)")
	invokeCmd.Flags().StringVar(&invokeMode, "mode", "flowstate", "purchase function to use when no target is given: flowstate or regular")

	viper.BindPFlag("invoke.retry_delay", invokeCmd.Flags().Lookup("delay"))
	viper.BindPFlag("invoke.max_attempts", invokeCmd.Flags().Lookup("max-attempts"))
}

func runInvoke(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	target, err := invokeTarget(rt, args)
	if err != nil {
		return err
	}

	retrier, err := rt.retrier(nil)
	if err != nil {
		return err
	}

	res, err := retrier.Invoke(ctx, target)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), res)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Property", "Value")
	table.Append([]string{"Target", target})
	table.Append([]string{"Request ID", res.RequestID})
	table.Append([]string{"Attempts", fmt.Sprintf("%d", res.Attempts)})
	table.Append([]string{"Waited", res.Waited.Round(time.Millisecond).String()})
	table.Append([]string{"Payload", res.Payload})
	table.Render()
	return nil
}

func invokeTarget(rt *runtime, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	mode, err := ledger.ParseMode(invokeMode)
	if err != nil {
		return "", err
	}
	if mode == ledger.ModeRegular {
		return rt.cfg.Invoke.RegularTarget, nil
	}
	return rt.cfg.Invoke.FlowstateTarget, nil
}
