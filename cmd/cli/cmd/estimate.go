// Package cmd - estimate command
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pcb-cost/core/bom"
	"pcb-cost/core/output"
	"pcb-cost/internal/config"
	"pcb-cost/internal/logging"
)

// estimateFlags are the per-run overrides of the configuration
type estimateFlags struct {
	format     string
	outputFile string
	details    bool
	boards     int
	volumes    []int
	tablesFile string
	provider   string
	enrich     bool
	noEnrich   bool
	noCache    bool
}

var estimateOpts estimateFlags

// estimateCmd represents the estimate command
var estimateCmd = &cobra.Command{
	Use:   "estimate <bom-file>",
	Short: "Estimate the cost of a bill of materials",
	Long: `Classify and price every line item of a BOM and report per-board and
per-run totals at each volume tier.

The BOM is a JSON or YAML document with a line_items list, or a bare list
of line items. Do-not-place and zero quantity lines are listed but not
costed.

Examples:
  pcb-cost estimate board.yaml
  pcb-cost estimate --boards 250 bom.json
  pcb-cost estimate --volumes 1,50,500 --format json board.yaml
  pcb-cost estimate --tables pricing.hcl board.yaml
  pcb-cost estimate --provider openai --enrich board.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

func init() {
	f := estimateCmd.Flags()
	f.StringVarP(&estimateOpts.format, "format", "f", "text", "output format (text, json, csv)")
	f.StringVarP(&estimateOpts.outputFile, "output", "o", "", "write the estimate to a file instead of stdout")
	f.BoolVarP(&estimateOpts.details, "details", "d", true, "list every component in text output")
	f.IntVarP(&estimateOpts.boards, "boards", "b", 0, "board quantity (default from the BOM or config)")
	f.IntSliceVar(&estimateOpts.volumes, "volumes", nil, "board counts to report (default pricing breakpoints)")
	f.StringVar(&estimateOpts.tablesFile, "tables", "", "HCL file overriding the pricing and assembly tables")
	f.StringVar(&estimateOpts.provider, "provider", "", "enrichment provider (none, openai, anthropic, mock)")
	f.BoolVar(&estimateOpts.enrich, "enrich", false, "enable AI enrichment")
	f.BoolVar(&estimateOpts.noEnrich, "no-enrich", false, "disable AI enrichment")
	f.BoolVar(&estimateOpts.noCache, "no-cache", false, "do not read or write the response cache")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	w := cmd.OutOrStdout()
	if estimateOpts.outputFile != "" {
		file, err := os.Create(estimateOpts.outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	cfg := *config.Get()
	return estimate(ctx, &cfg, args[0], estimateOpts, w)
}

// estimate loads the BOM at path, runs the pipeline and renders the result
// to w. cfg is modified by the flags.
func estimate(ctx context.Context, cfg *config.Config, path string, flags estimateFlags, w io.Writer) error {
	logger := logging.Named("cli")

	formatter, err := output.New(output.Format(flags.format), output.Options{Details: flags.details})
	if err != nil {
		return err
	}

	doc, err := bom.LoadFile(path)
	if err != nil {
		return err
	}

	applyFlags(cfg, flags, doc)
	if err := cfg.Validate(); err != nil {
		return err
	}

	p, err := newPipeline(cfg, flags.volumes, nil, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	est, err := p.estimator.Estimate(ctx, doc.Items)
	if err != nil {
		return err
	}

	if p.enricher != nil {
		stats := p.enricher.Stats()
		logger.Info("enrichment usage",
			zap.Int64("provider_calls", stats.ProviderCalls),
			zap.Int64("cache_hits", stats.CacheHits),
			zap.Int64("tokens_used", stats.TokensUsed),
			zap.Int64("tokens_saved", stats.TokensSaved))
	}

	logger.Debug("rendering estimate", zap.String("bom", doc.Name), zap.String("format", string(formatter.Format())))
	return formatter.Render(w, est)
}

// applyFlags layers the command line over the BOM document over cfg
func applyFlags(cfg *config.Config, flags estimateFlags, doc *bom.Document) {
	switch {
	case flags.boards > 0:
		cfg.Pricing.BoardQuantity = flags.boards
	case doc != nil && doc.BoardQuantity > 0:
		cfg.Pricing.BoardQuantity = doc.BoardQuantity
	}
	if flags.tablesFile != "" {
		cfg.Pricing.TablesFile = flags.tablesFile
	}
	if flags.provider != "" {
		cfg.LLM.Provider = flags.provider
	}
	if flags.enrich {
		cfg.Enrichment.Enabled = true
	}
	if flags.noEnrich {
		cfg.Enrichment.Enabled = false
	}
	if flags.noCache {
		cfg.Cache.Enabled = false
	}
}
