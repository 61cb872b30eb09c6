// Package classify infers component categories and package types from the
// identity fields of a line item using fixed rule tables.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pcb-cost/core/types"
)

// Rule confidences. The first matching rule wins.
const (
	ConfidenceDeclared = 1.0
	ConfidencePrefix   = 0.9
	ConfidenceKeyword  = 0.7
	ConfidenceMPN      = 0.6
	ConfidenceNone     = 0.0
)

// prefixCategories maps reference designator prefixes to categories
var prefixCategories = map[string]types.Category{
	"R":    types.CategoryResistor,
	"RN":   types.CategoryResistor,
	"RA":   types.CategoryResistor,
	"VR":   types.CategoryResistor,
	"C":    types.CategoryCapacitor,
	"L":    types.CategoryInductor,
	"FB":   types.CategoryInductor,
	"U":    types.CategoryIC,
	"IC":   types.CategoryIC,
	"D":    types.CategoryDiode,
	"ZD":   types.CategoryDiode,
	"Q":    types.CategoryTransistor,
	"LED":  types.CategoryLED,
	"Y":    types.CategoryCrystal,
	"X":    types.CategoryCrystal,
	"XTAL": types.CategoryCrystal,
	"J":    types.CategoryConnector,
	"P":    types.CategoryConnector,
	"CN":   types.CategoryConnector,
	"CON":  types.CategoryConnector,
	"SW":   types.CategorySwitch,
	"S":    types.CategorySwitch,
	"K":    types.CategoryRelay,
	"RLY":  types.CategoryRelay,
	"F":    types.CategoryFuse,
	"T":    types.CategoryTransformer,
	"TP":   types.CategoryOther,
	"BT":   types.CategoryOther,
	"MK":   types.CategorySensor,
}

type keywordRule struct {
	category types.Category
	keywords []string
	pattern  *regexp.Regexp
}

// keywordRules are tried in order. Specific categories come before the
// generic IC vocabulary.
var keywordRules = compileKeywords([]keywordRule{
	{category: types.CategoryResistor, keywords: []string{"resistor", "res", "ohm", "ohms", "potentiometer", "thermistor"}},
	{category: types.CategoryCapacitor, keywords: []string{"capacitor", "cap", "farad", "ceramic", "electrolytic", "tantalum", "mlcc"}},
	{category: types.CategoryInductor, keywords: []string{"inductor", "choke", "coil", "henry", "ferrite", "bead"}},
	{category: types.CategoryCrystal, keywords: []string{"crystal", "oscillator", "resonator", "xtal"}},
	{category: types.CategoryLED, keywords: []string{"led", "light emitting"}},
	{category: types.CategoryDiode, keywords: []string{"diode", "rectifier", "zener", "schottky", "tvs"}},
	{category: types.CategoryTransistor, keywords: []string{"transistor", "mosfet", "bjt", "fet", "jfet", "igbt"}},
	{category: types.CategoryConnector, keywords: []string{"connector", "header", "socket", "plug", "receptacle", "terminal block", "usb", "hdmi"}},
	{category: types.CategorySwitch, keywords: []string{"switch", "button", "pushbutton", "tactile"}},
	{category: types.CategoryRelay, keywords: []string{"relay"}},
	{category: types.CategoryFuse, keywords: []string{"fuse", "polyfuse", "ptc"}},
	{category: types.CategoryTransformer, keywords: []string{"transformer", "xfmr"}},
	{category: types.CategorySensor, keywords: []string{"sensor", "accelerometer", "gyroscope", "magnetometer", "hall effect", "microphone"}},
	{category: types.CategoryIC, keywords: []string{
		"integrated circuit", "ic", "microcontroller", "mcu", "processor", "cpu",
		"regulator", "ldo", "op-amp", "opamp", "amplifier", "driver", "controller",
		"logic", "memory", "eeprom", "flash", "dac", "adc", "converter", "transceiver",
	}},
})

func compileKeywords(rules []keywordRule) []keywordRule {
	for i := range rules {
		quoted := make([]string, len(rules[i].keywords))
		for j, kw := range rules[i].keywords {
			quoted[j] = regexp.QuoteMeta(kw)
		}
		rules[i].pattern = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	}
	return rules
}

type mpnRule struct {
	category types.Category
	pattern  *regexp.Regexp
}

func mpn(category types.Category, patterns ...string) []mpnRule {
	rules := make([]mpnRule, len(patterns))
	for i, p := range patterns {
		rules[i] = mpnRule{category: category, pattern: regexp.MustCompile(p)}
	}
	return rules
}

// mpnRules match vendor series prefixes against the upper-cased MPN
var mpnRules = concat(
	mpn(types.CategoryResistor, `^RC\d{4}`, `^ERJ-?\d`, `^CRCW\d`, `^RK73[HGB]`, `^RMCF\d`, `^CRG\d`),
	mpn(types.CategoryCapacitor, `^GRM\d`, `^GCM\d`, `^CL\d{2}[A-Z]`, `^CC\d{4}`, `^C\d{4}[A-Z]`, `^EEE-`, `^T491`),
	mpn(types.CategoryInductor, `^LQH\d`, `^LQM\d`, `^MLZ\d`, `^CDRH\d`, `^SRR\d`, `^XAL\d`, `^BLM\d`),
	mpn(types.CategoryIC, `^LM\d`, `^TPS\d`, `^STM32`, `^ATMEGA`, `^ATTINY`, `^PIC\d`, `^74[A-Z]+\d`, `^AD\d`, `^MAX\d`, `^ESP32`, `^NE555`, `^TL0\d`),
	mpn(types.CategoryDiode, `^1N\d`, `^BAT\d`, `^BZX\d`, `^SM[ABCJ]\d`, `^SS\d{2}`, `^MBR\d`),
	mpn(types.CategoryTransistor, `^2N\d`, `^BC\d{3}`, `^BSS\d`, `^IRF\d`, `^SI\d{4}`, `^AO\d{4}`, `^MMBT\d`),
	mpn(types.CategoryLED, `^LED`, `^APT\d`, `^LTST`, `^KP-\d`),
	mpn(types.CategoryCrystal, `^ABM\d`, `^ECS-\d`, `^\d+\.?\d*MHZ`, `^FA-\d`),
	mpn(types.CategoryConnector, `^\d{5,}-\d+`, `^USB\d*`, `^HDMI`, `^M20-\d`, `^B\d+B-`),
	mpn(types.CategorySwitch, `^SW_`, `^EVQ`, `^TL\d{4}`),
	mpn(types.CategoryRelay, `^G[56][A-Z]`, `^RELAY`),
	mpn(types.CategoryFuse, `^FUSE`, `^0ZC[AFGJKM]`, `^MF-`),
	mpn(types.CategoryTransformer, `^750\d`, `^XFMR`),
)

func concat(groups ...[]mpnRule) []mpnRule {
	var out []mpnRule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Classifier is the rule-based category classifier
type Classifier struct {
	prefixes []string
}

// New creates a classifier with the built-in rule tables
func New() *Classifier {
	prefixes := make([]string, 0, len(prefixCategories))
	for p := range prefixCategories {
		prefixes = append(prefixes, p)
	}
	// Longest first so CON wins over C
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	return &Classifier{prefixes: prefixes}
}

// Classify returns the deterministic classification of item. It never fails:
// an item nothing matches is unknown with confidence zero.
func (c *Classifier) Classify(item types.LineItem) types.ClassificationResult {
	if item.Category.IsResolved() && item.Category.IsValid() {
		return result(item.Category, ConfidenceDeclared, types.RuleDeclared, "category declared in BOM")
	}

	if prefix := item.RefPrefix(); prefix != "" {
		if cat, matched, ok := c.byPrefix(prefix); ok {
			return result(cat, ConfidencePrefix, types.RulePrefix, fmt.Sprintf("reference prefix %s", matched))
		}
	}

	if desc := strings.TrimSpace(item.Description); desc != "" {
		for _, rule := range keywordRules {
			if m := rule.pattern.FindString(desc); m != "" {
				return result(rule.category, ConfidenceKeyword, types.RuleKeyword, fmt.Sprintf("description keyword %q", strings.ToLower(m)))
			}
		}
	}

	if mpn := item.NormalizedMPN(); mpn != "" {
		for _, rule := range mpnRules {
			if rule.pattern.MatchString(mpn) {
				return result(rule.category, ConfidenceMPN, types.RuleMPN, fmt.Sprintf("part number matches %s", rule.pattern))
			}
		}
	}

	return types.ClassificationResult{
		Category:   types.CategoryUnknown,
		Confidence: ConfidenceNone,
		Source:     types.SourceNone,
		Rule:       types.RuleNone,
		Reasoning:  "no rule matched",
	}
}

// byPrefix finds the longest table prefix of the designator prefix
func (c *Classifier) byPrefix(prefix string) (types.Category, string, bool) {
	if cat, ok := prefixCategories[prefix]; ok {
		return cat, prefix, true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(prefix, p) {
			return prefixCategories[p], p, true
		}
	}
	return "", "", false
}

func result(cat types.Category, conf float64, rule types.ClassificationRule, reasoning string) types.ClassificationResult {
	return types.ClassificationResult{
		Category:   cat,
		Confidence: conf,
		Source:     types.SourceDeterministic,
		Rule:       rule,
		Reasoning:  reasoning,
	}
}
