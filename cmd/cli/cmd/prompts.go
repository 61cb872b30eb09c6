// Package cmd - prompt template commands
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pcb-cost/core/prompts"
	"pcb-cost/internal/config"
)

var promptVersion string

// promptsCmd groups prompt template inspection
var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List and show enrichment prompt templates",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		return listPrompts(cmd.OutOrStdout(), prompts.NewManager(cfg.Prompts.Dir), &cfg.Prompts)
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a template",
	Example: `  pcb-cost prompts show component_classification
  pcb-cost prompts show price_reasonableness --version v2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		version := promptVersion
		if version == "" {
			version = cfg.Prompts.PromptVersion(args[0])
		}
		return showPrompt(cmd.OutOrStdout(), prompts.NewManager(cfg.Prompts.Dir), args[0], version)
	},
}

func init() {
	promptsShowCmd.Flags().StringVar(&promptVersion, "version", "", "template version (default from config)")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
}

func listPrompts(w io.Writer, pm *prompts.Manager, pc *config.PromptsConfig) error {
	infos, err := pm.List()
	if err != nil {
		return err
	}
	for _, info := range infos {
		active := " "
		if pc.PromptVersion(info.Name) == info.Version {
			active = "*"
		}
		fmt.Fprintf(w, "%s %-26s %-4s %-40s %s\n", active, info.Name, info.Version, truncate(info.Description, 40), info.Source)
	}
	return nil
}

func showPrompt(w io.Writer, pm *prompts.Manager, name, version string) error {
	t, err := pm.Load(name, version)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s %s (%s)\n", t.Name, t.Version, t.Source)
	if t.Description != "" {
		fmt.Fprintf(w, "# %s\n", t.Description)
	}
	fmt.Fprintf(w, "\n[system]\n%s\n\n[user]\n%s\n", t.SystemPrompt, t.UserPromptTemplate)
	return nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
