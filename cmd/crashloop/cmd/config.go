package cmd

import (
	"fmt"
	"strings"

	"github.com/psantana5/crashloop/pkg/auth"
	tlsutil "github.com/psantana5/crashloop/pkg/tls"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration and generate credentials",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML, without secrets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random API key",
	Long:  `Prints a new API key. Set it as server.api_key (or CRASHLOOP_SERVER_API_KEY) to require it on the API.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auth.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var (
	certFile  string
	keyFile   string
	certHosts string
)

var configCertCmd = &cobra.Command{
	Use:   "cert",
	Short: "Generate a self-signed certificate for development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var hosts []string
		for _, h := range strings.Split(certHosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		if err := tlsutil.GenerateSelfSigned(certFile, keyFile, "crashloop", hosts...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s and %s\n", certFile, keyFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configKeygenCmd, configCertCmd)

	configCertCmd.Flags().StringVar(&certFile, "cert", "crashloop.crt", "certificate output path")
	configCertCmd.Flags().StringVar(&keyFile, "key", "crashloop.key", "private key output path")
	configCertCmd.Flags().StringVar(&certHosts, "hosts", "", "comma-separated extra hostnames or IPs")
}
