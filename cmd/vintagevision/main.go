// vintagevision serves the escalation and expert-matching API and runs
// offline accuracy evaluations.
//
// Usage:
//
//	vintagevision serve
//	vintagevision eval [--live] [--ground-truth=<path>] [--fidelity=0.8]
//	vintagevision match --category=<domain> [--tier=<id>]
//	vintagevision stats [--since=720h]
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vintagevision/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vintagevision",
	Short: "Escalation, expert matching and evaluation for AI item identification",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if strings.TrimSpace(configPath) != "" {
			os.Setenv("CONFIG_PATH", configPath)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.Version = version
}

func loadConfig() config.Config {
	return config.LoadConfig()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
