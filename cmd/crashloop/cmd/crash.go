package cmd

import (
	"fmt"
	"io"

	"github.com/psantana5/crashloop/pkg/crash"
	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Flip the crash flag",
	Long:  `Reads the crash flag and writes its complement: "0" becomes "1", anything else becomes "0".`,
	Args:  cobra.NoArgs,
	RunE:  runToggle,
}

var crashCmd = &cobra.Command{
	Use:   "crash",
	Short: "Inspect or reset the crash flag",
}

var crashStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current crash flag",
	Args:  cobra.NoArgs,
	RunE:  runCrashStatus,
}

var crashResetCmd = &cobra.Command{
	Use:   "reset",
	Short: `Set the crash flag back to "0"`,
	Args:  cobra.NoArgs,
	RunE:  runCrashReset,
}

func init() {
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(crashCmd)
	crashCmd.AddCommand(crashStatusCmd)
	crashCmd.AddCommand(crashResetCmd)
}

func runToggle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	value, err := rt.toggler(nil).Toggle(ctx)
	if err != nil {
		return err
	}
	return printCrashValue(cmd.OutOrStdout(), value)
}

func runCrashStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	value, err := rt.toggler(nil).Current(ctx)
	if err != nil {
		return err
	}
	return printCrashValue(cmd.OutOrStdout(), value)
}

func runCrashReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if err := rt.toggler(nil).Seed(ctx); err != nil {
		return err
	}
	return printCrashValue(cmd.OutOrStdout(), crash.Off)
}

func printCrashValue(w io.Writer, value string) error {
	if IsJSONOutput() {
		return printJSON(w, map[string]string{"crashed": value})
	}
	if value == crash.On {
		fmt.Fprintln(w, "Crash mode enabled (crashed=1)")
	} else {
		fmt.Fprintf(w, "Crash mode disabled (crashed=%s)\n", value)
	}
	return nil
}
