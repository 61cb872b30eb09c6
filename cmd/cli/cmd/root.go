// Package cmd provides the CLI commands for pcb-cost.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pcb-cost/internal/config"
	"pcb-cost/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pcb-cost",
	Short: "Estimate manufacturing costs for printed circuit boards",
	Long: `pcb-cost prices a bill of materials across volume tiers.

Components are classified and priced from parametric tables, assembly
and overhead are added per board, and an optional LLM provider can refine
low-confidence classifications, flag suspicious prices and detect
obsolete parts.

Examples:
  pcb-cost estimate board.yaml
  pcb-cost estimate --boards 100 --format json bom.json
  pcb-cost estimate --provider anthropic --enrich bom.yaml
  pcb-cost cache stats`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	defer logging.Sync()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pcb-cost version %s\n", Version)
	},
}
