package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
	outFormat string
	version   string = "dev"
)

// rootCmd notactl 运维入口，子命令共用 --server/--token/--format
var rootCmd = &cobra.Command{
	Use:   "notactl",
	Short: "Operator CLI for a running NotaLink daemon",
	Long: `notactl drives a running NotaLink daemon over its HTTP surface.

Every command needs a bearer token issued by the daemon's dev login:

  notactl auth token --username dev --password dev
  export NOTALINK_TOKEN=<token from above>

Examples:
  notactl task create "remind me in 30 minutes to stretch"
  notactl task list --enabled-only
  notactl task cancel 12
  notactl session list --status active
  notactl session end sess-1a2b3c
  notactl capability list --format yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outFormat != "json" && outFormat != "yaml" {
			return fmt.Errorf("unsupported --format %q (want json or yaml)", outFormat)
		}
		return nil
	},
}

// Execute 挂好的子命令统一从这里跑
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("NOTALINK_SERVER", "http://127.0.0.1:8080"), "Base URL of the NotaLink daemon")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("NOTALINK_TOKEN"), "Bearer token issued by /auth/token")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "format", "f", "json", "Output format (json, yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
