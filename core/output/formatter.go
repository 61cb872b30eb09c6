// Package output renders cost estimates for people and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"pcb-cost/core/types"
)

// Format represents output format type
type Format string

const (
	// FormatText is a human-readable summary
	FormatText Format = "text"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render writes est to w
	Render(w io.Writer, est *types.CostEstimate) error
}

// Options tune rendering
type Options struct {
	// Details lists every component in text output
	Details bool

	// TopDrivers is how many of the most expensive lines text output
	// ranks; zero uses five
	TopDrivers int
}

// New returns the formatter for format
func New(format Format, opts Options) (Formatter, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatText, "cli", "":
		return &TextFormatter{opts: opts}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (text, json, csv)", format)
}

// JSONFormatter writes the estimate as indented JSON
type JSONFormatter struct{}

// Format returns json
func (f *JSONFormatter) Format() Format { return FormatJSON }

// Render implements Formatter
func (f *JSONFormatter) Render(w io.Writer, est *types.CostEstimate) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(est)
}

// TextFormatter writes a boxed summary
type TextFormatter struct {
	opts Options
}

// Format returns text
func (f *TextFormatter) Format() Format { return FormatText }

const width = 73

func rule(w io.Writer, left, right string) {
	fmt.Fprintf(w, "%s%s%s\n", left, strings.Repeat("─", width), right)
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "│ %-50s %20s │\n", truncate(label, 50), truncate(value, 20))
}

func money(b types.PriceBand) string {
	return fmt.Sprintf("%s %s", b.Typical.StringFixed(2), b.Currency)
}

func rangeOf(b types.PriceBand) string {
	return fmt.Sprintf("%s..%s", b.Low.StringFixed(2), b.High.StringFixed(2))
}

// Render implements Formatter
func (f *TextFormatter) Render(w io.Writer, est *types.CostEstimate) error {
	rule(w, "┌", "┐")
	fmt.Fprintf(w, "│%s│\n", center("PCB COST ESTIMATE", width))
	rule(w, "├", "┤")

	if f.opts.Details {
		for _, c := range est.Components {
			value := money(c.UnitPrice.MulInt(max(c.Quantity, 0)))
			if c.Excluded {
				value = "excluded"
			}
			row(w, fmt.Sprintf("%s x%d %s", c.ReferenceDesignator, c.Quantity, c.Category), value)
			fmt.Fprintf(w, "│   └─ %-46s %20s │\n", truncate(describe(c), 46), truncate(rangeOf(c.UnitPrice), 20))
		}
		rule(w, "├", "┤")
	}

	for _, t := range est.Tiers {
		row(w, fmt.Sprintf("%d boards: per board", t.Volume), money(t.PerBoard))
		fmt.Fprintf(w, "│   └─ %-46s %20s │\n",
			fmt.Sprintf("parts %s  assembly %s  overhead %s",
				t.Components.Typical.StringFixed(2), t.Assembly.StringFixed(2), t.Overhead.Typical.StringFixed(2)),
			truncate(rangeOf(t.PerBoard), 20))
		row(w, "   run total", money(t.PerRun))
	}
	rule(w, "├", "┤")
	row(w, "Placements per board", fmt.Sprintf("%d", est.Assembly.TotalPlacements))
	row(w, "Unique parts", fmt.Sprintf("%d", est.Assembly.UniqueParts))
	rule(w, "└", "┘")

	f.breakdown(w, est)

	section(w, "Warnings", est.Warnings)
	section(w, "Notes", est.Notes)
	section(w, "Degraded", est.DegradedNotes)

	if len(est.Coverage) > 0 {
		fmt.Fprintln(w, "\nEnrichment:")
		names := make([]string, 0, len(est.Coverage))
		for name := range est.Coverage {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := est.Coverage[name]
			fmt.Fprintf(w, "  %-16s %d requested, %d completed (%d cached), %d unavailable\n",
				name, c.Requested, c.Completed, c.FromCache, c.Unavailable)
		}
	}

	m := est.Metadata
	fmt.Fprintf(w, "\nRun %s, %d lines, provider %s, completed in %s\n", m.RunID, m.LineCount, m.Provider, m.Duration)
	return nil
}

// breakdown lists cost by category and the top cost drivers per board
func (f *TextFormatter) breakdown(w io.Writer, est *types.CostEstimate) {
	cats := CostByCategory(est)
	if len(cats) == 0 {
		return
	}
	fmt.Fprintln(w, "\nCost by category (per board):")
	for _, c := range cats {
		fmt.Fprintf(w, "  %-14s %6d parts %12s %6.1f%%\n", c.Category, c.Parts, c.Total.StringFixed(2), c.Percent)
	}

	limit := f.opts.TopDrivers
	if limit <= 0 {
		limit = 5
	}
	fmt.Fprintln(w, "\nTop cost drivers:")
	for _, d := range TopCostDrivers(est, limit) {
		fmt.Fprintf(w, "  %-24s x%-5d %12s %6.1f%%\n", truncate(d.ReferenceDesignator, 24), d.Quantity, d.Total.StringFixed(2), d.Percent)
	}
}

func describe(c types.ComponentCostEstimate) string {
	parts := make([]string, 0, 3)
	if c.MPN != "" {
		parts = append(parts, c.MPN)
	} else if c.Description != "" {
		parts = append(parts, c.Description)
	}
	parts = append(parts, string(c.Package))
	if c.Excluded && c.ExclusionReason != "" {
		parts = append(parts, c.ExclusionReason)
	}
	return strings.Join(parts, " ")
}

func section(w io.Writer, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, l := range lines {
		fmt.Fprintf(w, "  - %s\n", l)
	}
}

func center(s string, n int) string {
	pad := n - len(s)
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad/2) + s + strings.Repeat(" ", pad-pad/2)
}

// truncate shortens s to maxLen runes
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
