package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/psantana5/crashloop/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crashloop",
	Short: "Chaos-injection invocation harness",
	Long: `crashloop drives a remote compute function under simulated crash conditions.
It flips a shared crash flag, retries the function until it answers, and lets
you check that the ledger it mutates stays consistent across restarts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.crashloop/config.yaml)")
	flags.StringVar(&outputFormat, "output", "table", "output format: table or json")
	flags.String("endpoint", "", "AWS endpoint URL (default http://localhost:4566)")
	flags.String("region", "", "AWS region (default us-east-1)")
	flags.String("backend", "", "kv backend: sqlite, postgres, dynamodb, redis, or memory (serve only)")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	viper.BindPFlag("aws.endpoint_url", flags.Lookup("endpoint"))
	viper.BindPFlag("aws.region", flags.Lookup("region"))
	viper.BindPFlag("kv.backend", flags.Lookup("backend"))
	viper.BindPFlag("logging.level", flags.Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}
		v.AddConfigPath(filepath.Join(home, ".crashloop"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadConfig returns the validated configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
