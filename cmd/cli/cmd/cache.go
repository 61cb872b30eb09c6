// Package cmd - cache commands
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pcb-cost/core/llmcache"
	"pcb-cost/core/types"
	"pcb-cost/internal/clock"
	"pcb-cost/internal/config"
	"pcb-cost/internal/errors"
	"pcb-cost/internal/logging"
)

var (
	cacheJSON  bool
	clearKind  string
	clearMPN   string
	clearForce bool
)

// cacheCmd groups cache maintenance
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the enrichment response cache",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entries, hits and tokens saved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), stats, cacheJSON)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached responses",
	Long: `Remove cached responses, optionally only one kind or one part number.

Examples:
  pcb-cost cache clear --all
  pcb-cost cache clear --kind price_check
  pcb-cost cache clear --mpn STM32F103C8T6`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := clearFilter(clearKind, clearMPN)
		if err != nil {
			return err
		}
		if filter == (llmcache.Filter{}) && !clearForce {
			return errors.Input("refusing to clear the whole cache without --all", nil)
		}

		store, err := openStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Clear(cmd.Context(), filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", n)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().BoolVar(&cacheJSON, "json", false, "print statistics as JSON")

	cacheClearCmd.Flags().StringVar(&clearKind, "kind", "", "only this kind (classification, price_check, obsolescence)")
	cacheClearCmd.Flags().StringVar(&clearMPN, "mpn", "", "only this part number")
	cacheClearCmd.Flags().BoolVar(&clearForce, "all", false, "clear every entry")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}

func openStore(cfg *config.Config) (*llmcache.SQLiteStore, error) {
	if !cfg.Cache.Enabled {
		return nil, errors.Config("the response cache is disabled", nil)
	}
	return llmcache.OpenSQLite(cfg.Cache.Path, clock.Real{}, logging.Named("llmcache"))
}

// kindAliases maps the short capability names to request kinds
var kindAliases = map[string]types.RequestKind{
	"classification": types.KindClassification,
	"price_check":    types.KindPriceCheck,
	"obsolescence":   types.KindObsolescence,
}

// parseKind accepts a short alias or a full request kind
func parseKind(s string) (types.RequestKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	if k := types.RequestKind(s); k.IsValid() {
		return k, nil
	}
	return "", errors.Input(fmt.Sprintf("unknown kind %q (classification, price_check, obsolescence)", s), nil)
}

func clearFilter(kind, mpn string) (llmcache.Filter, error) {
	var f llmcache.Filter
	if kind != "" {
		k, err := parseKind(kind)
		if err != nil {
			return f, err
		}
		f.Kind = k
	}
	f.Identity = types.NormalizeMPN(mpn)
	return f, nil
}

func printStats(w io.Writer, s llmcache.Stats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "Cache:         %s\n", s.Location)
	fmt.Fprintf(w, "Entries:       %d (%d expired)\n", s.Entries, s.Expired)
	fmt.Fprintf(w, "Hits:          %d\n", s.Hits)
	fmt.Fprintf(w, "Tokens saved:  %d\n", s.TokensSaved)
	if s.Oldest != nil && s.Newest != nil {
		fmt.Fprintf(w, "Span:          %s to %s\n", s.Oldest.Format(time.DateTime), s.Newest.Format(time.DateTime))
	}
	for _, kind := range types.RequestKinds {
		ks, ok := s.ByKind[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-26s %5d entries %6d hits %8d tokens saved\n", kind, ks.Entries, ks.Hits, ks.TokensSaved)
	}
	return nil
}
