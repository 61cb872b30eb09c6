// Package tables loads pricing and assembly tables from HCL files.
//
// A file only names what it overrides; everything else keeps the
// compiled-in defaults:
//
//	currency             = "EUR"
//	uncertainty_widening = 0.4
//
//	category "ic" {
//	  low     = 0.25
//	  typical = 1.8
//	  high    = 12
//	}
//
//	package "bga" {
//	  multiplier = 3
//	}
//
//	volume {
//	  breakpoints   = [1, 10, 100, 1000, 10000]
//	  discounts     = [1, 0.9, 0.7, 0.5, 0.35]
//	  min_unit_cost = 0.0005
//	}
//
//	assembly {
//	  setup_cost = 200
//	  tier "bga" {
//	    unit_cost = 0.3
//	  }
//	}
//
//	overhead {
//	  nre_cost            = 0
//	  procurement_percent = 8
//	}
package tables

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	"pcb-cost/core/assembly"
	"pcb-cost/core/pricing"
	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
)

// Set is the pair of tables a run prices with
type Set struct {
	Pricing  pricing.Tables
	Assembly assembly.Rates

	// CurrencySet is true when the file named a currency
	CurrencySet bool
}

// Defaults returns the compiled-in tables
func Defaults() Set {
	return Set{Pricing: pricing.DefaultTables(), Assembly: assembly.DefaultRates()}
}

type fileSchema struct {
	Currency            *string   `hcl:"currency,optional"`
	UncertaintyWidening *float64  `hcl:"uncertainty_widening,optional"`
	Categories          []band    `hcl:"category,block"`
	Fallback            *fallback `hcl:"fallback,block"`
	Packages            []pkg     `hcl:"package,block"`
	Volume              *volume   `hcl:"volume,block"`
	Assembly            *asm      `hcl:"assembly,block"`
	Overhead            *overhead `hcl:"overhead,block"`
}

type band struct {
	Name    string  `hcl:"name,label"`
	Low     float64 `hcl:"low"`
	Typical float64 `hcl:"typical"`
	High    float64 `hcl:"high"`
}

type fallback struct {
	Low      *float64 `hcl:"low,optional"`
	Typical  *float64 `hcl:"typical,optional"`
	High     *float64 `hcl:"high,optional"`
	Widening *float64 `hcl:"widening,optional"`
}

type pkg struct {
	Name       string  `hcl:"name,label"`
	Multiplier float64 `hcl:"multiplier"`
}

type volume struct {
	Breakpoints []int     `hcl:"breakpoints,optional"`
	Discounts   []float64 `hcl:"discounts,optional"`
	MinUnitCost *float64  `hcl:"min_unit_cost,optional"`
}

type asm struct {
	SetupCost          *float64 `hcl:"setup_cost,optional"`
	FeederSetupCost    *float64 `hcl:"feeder_setup_cost,optional"`
	SurchargeMaxVolume *int     `hcl:"surcharge_max_volume,optional"`
	Tiers              []tier   `hcl:"tier,block"`
}

type tier struct {
	Name     string  `hcl:"name,label"`
	UnitCost float64 `hcl:"unit_cost"`
}

type overhead struct {
	NRECost            *float64 `hcl:"nre_cost,optional"`
	ProcurementPercent *float64 `hcl:"procurement_percent,optional"`
}

// Loader parses table files
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new loader
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// LoadFile reads path over the defaults. An empty path returns the defaults.
func LoadFile(path string) (Set, error) {
	if path == "" {
		return Defaults(), nil
	}
	return NewLoader().Load(path)
}

// Load reads and validates one file
func (l *Loader) Load(path string) (Set, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Set{}, errors.Config(fmt.Sprintf("failed to read tables file %s", path), err)
	}
	return l.Parse(src, path)
}

// Parse decodes src over the defaults and validates the result
func (l *Loader) Parse(src []byte, filename string) (Set, error) {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Set{}, diagError(filename, diags)
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return Set{}, diagError(filename, diags)
	}

	set := Defaults()
	if err := schema.apply(&set); err != nil {
		return Set{}, errors.Config(filename, err)
	}
	if err := set.Pricing.Validate(); err != nil {
		return Set{}, errors.Config(filename, err)
	}
	if err := set.Assembly.Validate(); err != nil {
		return Set{}, errors.Config(filename, err)
	}
	return set, nil
}

func (s *fileSchema) apply(set *Set) error {
	p := &set.Pricing
	if s.Currency != nil {
		p.Currency = types.Currency(strings.ToUpper(*s.Currency))
		set.CurrencySet = true
	}
	setDec(&p.UncertaintyWidening, s.UncertaintyWidening)

	for _, b := range s.Categories {
		cat := types.ParseCategory(b.Name)
		if !cat.IsResolved() {
			return fmt.Errorf("category %q is not a known category", b.Name)
		}
		p.Categories[cat] = pricing.BaseBand{
			Low:     decimal.NewFromFloat(b.Low),
			Typical: decimal.NewFromFloat(b.Typical),
			High:    decimal.NewFromFloat(b.High),
		}
	}

	if f := s.Fallback; f != nil {
		setDec(&p.Fallback.Low, f.Low)
		setDec(&p.Fallback.Typical, f.Typical)
		setDec(&p.Fallback.High, f.High)
		setDec(&p.FallbackWidening, f.Widening)
	}

	for _, m := range s.Packages {
		pt := types.PackageType(strings.ToLower(m.Name))
		if !pt.IsValid() {
			return fmt.Errorf("package %q is not a known package type", m.Name)
		}
		p.PackageMultipliers[pt] = decimal.NewFromFloat(m.Multiplier)
	}

	if v := s.Volume; v != nil {
		if len(v.Breakpoints) > 0 {
			p.Curve.Breakpoints = v.Breakpoints
		}
		if len(v.Discounts) > 0 {
			p.Curve.Multipliers = make([]decimal.Decimal, len(v.Discounts))
			for i, d := range v.Discounts {
				p.Curve.Multipliers[i] = decimal.NewFromFloat(d)
			}
		}
		setDec(&p.Curve.Floor, v.MinUnitCost)
	}

	a := &set.Assembly
	if s.Assembly != nil {
		setDec(&a.SetupCost, s.Assembly.SetupCost)
		setDec(&a.FeederSetupCost, s.Assembly.FeederSetupCost)
		if s.Assembly.SurchargeMaxVolume != nil {
			a.SurchargeMaxVolume = *s.Assembly.SurchargeMaxVolume
		}
		for _, t := range s.Assembly.Tiers {
			at := types.AssemblyTier(strings.ToLower(t.Name))
			if _, ok := a.UnitCost[at]; !ok {
				return fmt.Errorf("assembly tier %q is not a known tier", t.Name)
			}
			a.UnitCost[at] = decimal.NewFromFloat(t.UnitCost)
		}
	}
	if s.Overhead != nil {
		setDec(&a.NRECost, s.Overhead.NRECost)
		setDec(&a.ProcurementPercent, s.Overhead.ProcurementPercent)
	}
	return nil
}

func setDec(dst *decimal.Decimal, v *float64) {
	if v != nil {
		*dst = decimal.NewFromFloat(*v)
	}
}

// diagError folds error diagnostics into one config error with line numbers
func diagError(filename string, diags hcl.Diagnostics) error {
	var msgs []string
	line := 0
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		loc := filename
		if diag.Subject != nil {
			loc = fmt.Sprintf("%s:%d", filename, diag.Subject.Start.Line)
			if line == 0 {
				line = diag.Subject.Start.Line
			}
		}
		msgs = append(msgs, loc+": "+diag.Summary+": "+diag.Detail)
	}
	return errors.Config(strings.Join(msgs, "; "), diags).
		WithContext("file", filename).
		WithContext("line", line)
}
