package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pcb-cost/core/types"
)

// FormatCSV is a spreadsheet export with one row per line item
const FormatCSV Format = "csv"

// CSVFormatter writes component rows, then the tier summary
type CSVFormatter struct{}

// Format returns csv
func (f *CSVFormatter) Format() Format { return FormatCSV }

// Render implements Formatter
func (f *CSVFormatter) Render(w io.Writer, est *types.CostEstimate) error {
	cw := csv.NewWriter(w)

	header := []string{
		"Reference Designator", "Quantity", "Category", "Package", "Manufacturer", "MPN", "Description",
		"Unit Low", "Unit Typical", "Unit High", "Line Low", "Line Typical", "Line High",
	}
	for _, t := range est.Tiers {
		header = append(header, fmt.Sprintf("Unit @ %d", t.Volume))
	}
	header = append(header, "Excluded", "Notes")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, c := range est.Components {
		line := c.UnitPrice.MulInt(max(c.Quantity, 0))
		if c.Excluded {
			line = types.ZeroBand(c.UnitPrice.Currency, c.UnitPrice.Volume)
		}
		rec := []string{
			c.ReferenceDesignator,
			strconv.Itoa(c.Quantity),
			string(c.Category),
			string(c.Package),
			c.Manufacturer,
			c.MPN,
			c.Description,
			c.UnitPrice.Low.StringFixed(types.MoneyPlaces),
			c.UnitPrice.Typical.StringFixed(types.MoneyPlaces),
			c.UnitPrice.High.StringFixed(types.MoneyPlaces),
			line.Low.StringFixed(types.MoneyPlaces),
			line.Typical.StringFixed(types.MoneyPlaces),
			line.High.StringFixed(types.MoneyPlaces),
		}
		for _, t := range est.Tiers {
			cell := ""
			if tl, ok := c.Tier(t.Volume); ok {
				cell = tl.UnitCost.Typical.StringFixed(types.MoneyPlaces)
			}
			rec = append(rec, cell)
		}
		notes := make([]string, 0, len(c.Warnings)+len(c.Notes))
		notes = append(append(notes, c.Warnings...), c.Notes...)
		rec = append(rec, strconv.FormatBool(c.Excluded), strings.Join(notes, "; "))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	summary := [][]string{
		{},
		{"SUMMARY"},
		{"Volume", "Per Board Low", "Per Board Typical", "Per Board High", "Run Total Typical", "Currency"},
	}
	for _, t := range est.Tiers {
		summary = append(summary, []string{
			strconv.Itoa(t.Volume),
			t.PerBoard.Low.StringFixed(2),
			t.PerBoard.Typical.StringFixed(2),
			t.PerBoard.High.StringFixed(2),
			t.PerRun.Typical.StringFixed(2),
			string(t.PerBoard.Currency),
		})
	}
	if err := cw.WriteAll(summary); err != nil {
		return err
	}
	return cw.Error()
}
