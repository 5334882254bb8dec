package cmd

import (
	"net/http"
	"time"

	"github.com/psantana5/crashloop/internal/report"
	tlsutil "github.com/psantana5/crashloop/pkg/tls"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a running server's invocation metrics",
	Long:  `Scrapes /metrics from a running crashloop server and prints attempts, crash rate and time spent waiting per target.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("server", "", "server URL (default http://localhost:3000)")
	viper.BindPFlag("server.url", statsCmd.Flags().Lookup("server"))
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	if cfg.Server.TLS.CAFile != "" {
		tlsCfg, err := tlsutil.ClientConfig(tlsutil.Config{CAFile: cfg.Server.TLS.CAFile})
		if err != nil {
			return err
		}
		client.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	families, err := report.Fetch(cmd.Context(), client, cfg.Server.URL, cfg.Server.APIKey)
	if err != nil {
		return err
	}
	summary := report.Summarize(families)

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), summary)
	}
	report.Render(cmd.OutOrStdout(), summary)
	return nil
}
