// Package types defines core domain types shared across all layers.
// This package contains NO business logic beyond normalization helpers.
package types

import (
	"fmt"
	"math"
	"strings"

	"pcb-cost/internal/errors"
)

// Category is a component category
type Category string

const (
	CategoryResistor    Category = "resistor"
	CategoryCapacitor   Category = "capacitor"
	CategoryInductor    Category = "inductor"
	CategoryIC          Category = "ic"
	CategoryConnector   Category = "connector"
	CategoryDiode       Category = "diode"
	CategoryTransistor  Category = "transistor"
	CategoryLED         Category = "led"
	CategoryCrystal     Category = "crystal"
	CategorySwitch      Category = "switch"
	CategoryRelay       Category = "relay"
	CategoryFuse        Category = "fuse"
	CategoryTransformer Category = "transformer"
	CategorySensor      Category = "sensor"
	CategoryOther       Category = "other"
	CategoryUnknown     Category = "unknown"
)

// Categories lists every category in a stable order
var Categories = []Category{
	CategoryResistor, CategoryCapacitor, CategoryInductor, CategoryIC,
	CategoryConnector, CategoryDiode, CategoryTransistor, CategoryLED,
	CategoryCrystal, CategorySwitch, CategoryRelay, CategoryFuse,
	CategoryTransformer, CategorySensor, CategoryOther, CategoryUnknown,
}

// String returns the string representation
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is a known category
func (c Category) IsValid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// IsResolved reports whether the category carries information
func (c Category) IsResolved() bool {
	return c != "" && c != CategoryUnknown
}

// ParseCategory normalizes free text to a Category. Unrecognized text
// returns CategoryUnknown.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "":
		return ""
	case "res":
		return CategoryResistor
	case "cap":
		return CategoryCapacitor
	case "oscillator", "xtal":
		return CategoryCrystal
	case "integrated_circuit", "integrated circuit":
		return CategoryIC
	}
	if c.IsValid() {
		return c
	}
	return CategoryUnknown
}

// PackageType is a coarse footprint family
type PackageType string

const (
	PackageSMDSmall    PackageType = "smd_small"
	PackageSMDMedium   PackageType = "smd_medium"
	PackageSMDLarge    PackageType = "smd_large"
	PackageSOIC        PackageType = "soic"
	PackageQFP         PackageType = "qfp"
	PackageQFN         PackageType = "qfn"
	PackageBGA         PackageType = "bga"
	PackageThroughHole PackageType = "through_hole"
	PackageConnector   PackageType = "connector"
	PackageOther       PackageType = "other"
	PackageUnknown     PackageType = "unknown"
)

// PackageTypes lists every package type in a stable order
var PackageTypes = []PackageType{
	PackageSMDSmall, PackageSMDMedium, PackageSMDLarge, PackageSOIC,
	PackageQFP, PackageQFN, PackageBGA, PackageThroughHole,
	PackageConnector, PackageOther, PackageUnknown,
}

// String returns the string representation
func (p PackageType) String() string {
	return string(p)
}

// IsValid checks if the package type is known
func (p PackageType) IsValid() bool {
	for _, k := range PackageTypes {
		if p == k {
			return true
		}
	}
	return false
}

// AssemblyTier groups package types by placement difficulty
type AssemblyTier string

const (
	TierSmallSMD    AssemblyTier = "small_smd"
	TierLargeSMD    AssemblyTier = "large_smd"
	TierFinePitch   AssemblyTier = "fine_pitch"
	TierBGA         AssemblyTier = "bga"
	TierThroughHole AssemblyTier = "through_hole"
	TierConnector   AssemblyTier = "connector"
)

// AssemblyTiers lists every assembly tier in a stable order
var AssemblyTiers = []AssemblyTier{
	TierSmallSMD, TierLargeSMD, TierFinePitch, TierBGA, TierThroughHole, TierConnector,
}

// TierFor maps a package type to its assembly tier
func TierFor(p PackageType) AssemblyTier {
	switch p {
	case PackageSMDSmall, PackageSMDMedium:
		return TierSmallSMD
	case PackageQFP, PackageQFN:
		return TierFinePitch
	case PackageBGA:
		return TierBGA
	case PackageThroughHole:
		return TierThroughHole
	case PackageConnector:
		return TierConnector
	default:
		return TierLargeSMD
	}
}

// LineItem is one normalized BOM row. The core never mutates it.
type LineItem struct {
	// ReferenceDesignator is the comma separated list of board references
	ReferenceDesignator string `json:"reference_designator" yaml:"reference_designator"`

	// Quantity is the number of placements per board
	Quantity int `json:"quantity" yaml:"quantity"`

	Manufacturer string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`

	// MPN is the manufacturer part number and the identity key
	MPN string `json:"mpn,omitempty" yaml:"mpn,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Package     string `json:"package,omitempty" yaml:"package,omitempty"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`

	// Category is empty until classified
	Category Category `json:"category,omitempty" yaml:"category,omitempty"`

	// DNP marks a do-not-place item
	DNP bool `json:"dnp,omitempty" yaml:"dnp,omitempty"`

	// LineNumber is the source row, zero when unknown
	LineNumber int `json:"line_number,omitempty" yaml:"line_number,omitempty"`
}

// Validate checks the fields the engine relies on
func (i LineItem) Validate() error {
	if strings.TrimSpace(i.ReferenceDesignator) == "" {
		return errors.Validation("reference designator is empty").WithContext("line", i.LineNumber)
	}
	if i.Quantity < 0 {
		return errors.Validation(fmt.Sprintf("negative quantity %d", i.Quantity)).
			WithContext("reference", i.ReferenceDesignator)
	}
	return nil
}

// Excluded reports whether the item contributes nothing to totals
func (i LineItem) Excluded() bool {
	return i.DNP || i.Quantity == 0
}

// NormalizedMPN returns the trimmed upper-cased MPN
func (i LineItem) NormalizedMPN() string {
	return NormalizeMPN(i.MPN)
}

// NormalizeMPN trims and upper-cases a part number
func NormalizeMPN(mpn string) string {
	return strings.ToUpper(strings.TrimSpace(mpn))
}

// FirstReference returns the first designator of a list such as "R1, R2"
func (i LineItem) FirstReference() string {
	ref := strings.TrimSpace(i.ReferenceDesignator)
	if idx := strings.IndexAny(ref, ", ;"); idx >= 0 {
		ref = ref[:idx]
	}
	return ref
}

// RefPrefix returns the upper-cased alphabetic prefix of the first designator
func (i LineItem) RefPrefix() string {
	ref := i.FirstReference()
	end := 0
	for end < len(ref) && isASCIILetter(ref[end]) {
		end++
	}
	return strings.ToUpper(ref[:end])
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Identity is the cache and deduplication key: the normalized MPN, or the
// normalized description plus reference prefix when the MPN is absent.
func (i LineItem) Identity() string {
	if mpn := i.NormalizedMPN(); mpn != "" {
		return mpn
	}
	desc := strings.Join(strings.Fields(strings.ToLower(i.Description)), " ")
	return "desc:" + desc + "|ref:" + i.RefPrefix()
}

// ClassificationSource records who produced a classification
type ClassificationSource string

const (
	SourceDeterministic ClassificationSource = "deterministic"
	SourceAI            ClassificationSource = "ai"
	SourceNone          ClassificationSource = "none"
)

// ClassificationRule records the rule that matched
type ClassificationRule string

const (
	RuleDeclared ClassificationRule = "declared"
	RulePrefix   ClassificationRule = "prefix"
	RuleKeyword  ClassificationRule = "keyword"
	RuleMPN      ClassificationRule = "mpn"
	RuleNone     ClassificationRule = "none"
	RuleAI       ClassificationRule = "ai"
)

// ClassificationResult is an immutable category decision
type ClassificationResult struct {
	Category   Category             `json:"category"`
	Confidence float64              `json:"confidence"`
	Source     ClassificationSource `json:"source"`
	Rule       ClassificationRule   `json:"rule"`
	Reasoning  string               `json:"reasoning,omitempty"`

	// Subcategory and Package are optional hints from the provider
	Subcategory string      `json:"subcategory,omitempty"`
	Package     PackageType `json:"package,omitempty"`
}

// Validate checks that the result carries a known category and package
func (r ClassificationResult) Validate() error {
	if !r.Category.IsValid() {
		return errors.Parse(fmt.Sprintf("unknown category %q", r.Category), nil)
	}
	if r.Package != "" && !r.Package.IsValid() {
		return errors.Parse(fmt.Sprintf("unknown package %q", r.Package), nil)
	}
	return checkUnit("confidence", r.Confidence)
}

func checkUnit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return errors.Parse(fmt.Sprintf("%s %v outside [0, 1]", name, v), nil)
	}
	return nil
}
