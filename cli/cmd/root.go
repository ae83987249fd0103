package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/cli/internal/client"
	"github.com/netsentry/netsentry/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nsctl",
	Short: "NetSentry CLI",
	Long: `nsctl is the command-line interface for the NetSentry ingest gate.

Mint agent tokens, seed and toggle detection signatures, simulate agent
traffic, submit alerts and watch the live channel from your terminal.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.nsctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("gate", "", "gate base URL, overrides the profile")
	rootCmd.PersistentFlags().String("token", "", "agent or operator token, overrides the profile")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// activeProfile resolves the selected profile and applies flag overrides.
func activeProfile(cmd *cobra.Command) config.Profile {
	if cfg == nil {
		cfg = config.Default()
	}
	name, _ := cmd.Flags().GetString("profile")
	p := cfg.Resolve(name)

	if gate, _ := cmd.Flags().GetString("gate"); gate != "" {
		p.GateURL = gate
	}
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		p.Token = token
	}
	return p
}

func gateClient(cmd *cobra.Command) *client.GateClient {
	p := activeProfile(cmd)
	return client.NewGateClient(p.GateURL, p.Token)
}

func wantJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}
