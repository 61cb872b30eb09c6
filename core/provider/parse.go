package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
)

// thinkTagPattern matches <think>...</think> blocks some models emit first
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ExtractJSON extracts the first JSON object from a response that may be
// wrapped in markdown fences or prose.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	if s, ok := extractBalancedJSON(cleaned, '{', '}'); ok && json.Valid([]byte(s)) {
		return s, nil
	}

	trimmed := strings.TrimSpace(cleaned)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}

// extractBalancedJSON finds the first balanced structure starting with openChar
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeJSON(data []byte, v interface{}) error {
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.Parse("malformed JSON", err)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Parse(fmt.Sprintf(format, args...), nil)
}

func checkConfidence(c *float64) (float64, error) {
	if c == nil {
		return 0, invalid("missing confidence")
	}
	if math.IsNaN(*c) || *c < 0 || *c > 1 {
		return 0, invalid("confidence %v outside [0, 1]", *c)
	}
	return *c, nil
}

type classificationPayload struct {
	Category    *string  `json:"category"`
	Confidence  *float64 `json:"confidence"`
	Subcategory string   `json:"subcategory"`
	PackageType string   `json:"package_type"`
	Reasoning   string   `json:"reasoning"`
}

// ParseClassification validates a classification reply
func ParseClassification(data []byte) (types.ClassificationResult, error) {
	var p classificationPayload
	if err := decodeJSON(data, &p); err != nil {
		return types.ClassificationResult{}, err
	}
	if p.Category == nil {
		return types.ClassificationResult{}, invalid("missing category")
	}
	cat := types.Category(strings.ToLower(strings.TrimSpace(*p.Category)))
	if !cat.IsValid() {
		return types.ClassificationResult{}, invalid("unknown category %q", *p.Category)
	}
	conf, err := checkConfidence(p.Confidence)
	if err != nil {
		return types.ClassificationResult{}, err
	}

	res := types.ClassificationResult{
		Category:    cat,
		Confidence:  conf,
		Source:      types.SourceAI,
		Rule:        types.RuleAI,
		Reasoning:   p.Reasoning,
		Subcategory: p.Subcategory,
	}
	if p.PackageType != "" {
		pkg := types.PackageType(strings.ToLower(strings.TrimSpace(p.PackageType)))
		if !pkg.IsValid() {
			return types.ClassificationResult{}, invalid("unknown package_type %q", p.PackageType)
		}
		res.Package = pkg
	}
	return res, nil
}

type priceRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type pricePayload struct {
	IsReasonable       *bool       `json:"is_reasonable"`
	ExpectedPriceRange *priceRange `json:"expected_price_range"`
	Variance           *float64    `json:"price_variance_percentage"`
	Confidence         *float64    `json:"confidence"`
	Suggestion         string      `json:"suggestion"`
	Reasoning          string      `json:"reasoning"`
	Issues             []string    `json:"issues"`
}

// ParsePriceCheck validates a price reply. A missing variance is computed
// from band's typical point against the midpoint of the expected range.
func ParsePriceCheck(data []byte, band types.PriceBand) (types.PriceReasonablenessResult, error) {
	var p pricePayload
	if err := decodeJSON(data, &p); err != nil {
		return types.PriceReasonablenessResult{}, err
	}
	if p.IsReasonable == nil {
		return types.PriceReasonablenessResult{}, invalid("missing is_reasonable")
	}
	r := p.ExpectedPriceRange
	if r == nil || r.Min == nil || r.Max == nil {
		return types.PriceReasonablenessResult{}, invalid("missing expected_price_range")
	}
	if *r.Min < 0 || *r.Max < *r.Min || math.IsNaN(*r.Min) || math.IsInf(*r.Max, 0) {
		return types.PriceReasonablenessResult{}, invalid("invalid expected_price_range %v..%v", *r.Min, *r.Max)
	}
	conf, err := checkConfidence(p.Confidence)
	if err != nil {
		return types.PriceReasonablenessResult{}, err
	}

	res := types.PriceReasonablenessResult{
		ExpectedLow:  decimal.NewFromFloat(*r.Min),
		ExpectedHigh: decimal.NewFromFloat(*r.Max),
		IsReasonable: *p.IsReasonable,
		Confidence:   conf,
		Suggestion:   p.Suggestion,
	}
	if res.Suggestion == "" {
		res.Suggestion = p.Reasoning
	}
	if res.Suggestion == "" && len(p.Issues) > 0 {
		res.Suggestion = strings.Join(p.Issues, "; ")
	}

	if p.Variance != nil && !math.IsNaN(*p.Variance) && !math.IsInf(*p.Variance, 0) {
		res.VariancePercent = *p.Variance
	} else {
		res.VariancePercent = VariancePercent(band.Typical, res.ExpectedLow, res.ExpectedHigh)
	}
	return res, nil
}

// VariancePercent returns (observed - mid) / mid * 100 where mid is the
// midpoint of [low, high]. A zero midpoint yields zero.
func VariancePercent(observed, low, high decimal.Decimal) float64 {
	mid := low.Add(high).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return 0
	}
	v, _ := observed.Sub(mid).Div(mid).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return v
}

type obsolescencePayload struct {
	Risk            *string           `json:"obsolescence_risk"`
	Lifecycle       *string           `json:"lifecycle_status"`
	Confidence      *float64          `json:"confidence"`
	RiskFactors     []string          `json:"risk_factors"`
	Alternatives    []json.RawMessage `json:"alternatives"`
	Recommendations []string          `json:"recommendations"`
}

type alternativePayload struct {
	MPN          string `json:"mpn"`
	Manufacturer string `json:"manufacturer"`
	Notes        string `json:"notes"`
}

// ParseObsolescence validates a lifecycle reply for mpn
func ParseObsolescence(data []byte, mpn string) (types.ObsolescenceResult, error) {
	var p obsolescencePayload
	if err := decodeJSON(data, &p); err != nil {
		return types.ObsolescenceResult{}, err
	}
	if p.Risk == nil {
		return types.ObsolescenceResult{}, invalid("missing obsolescence_risk")
	}
	risk := types.RiskLevel(strings.ToLower(strings.TrimSpace(*p.Risk)))
	if !risk.IsValid() {
		return types.ObsolescenceResult{}, invalid("unknown obsolescence_risk %q", *p.Risk)
	}
	if p.Lifecycle == nil {
		return types.ObsolescenceResult{}, invalid("missing lifecycle_status")
	}
	life := types.LifecycleStatus(strings.ToLower(strings.TrimSpace(*p.Lifecycle)))
	if !life.IsValid() {
		return types.ObsolescenceResult{}, invalid("unknown lifecycle_status %q", *p.Lifecycle)
	}
	conf, err := checkConfidence(p.Confidence)
	if err != nil {
		return types.ObsolescenceResult{}, err
	}

	res := types.ObsolescenceResult{
		MPN:             mpn,
		Risk:            risk,
		Lifecycle:       life,
		RiskFactors:     p.RiskFactors,
		Recommendations: p.Recommendations,
		Confidence:      conf,
	}
	for i, raw := range p.Alternatives {
		alt, err := parseAlternative(raw)
		if err != nil {
			return types.ObsolescenceResult{}, invalid("alternative %d: %v", i, err)
		}
		res.Alternatives = append(res.Alternatives, alt)
	}
	return res, nil
}

// parseAlternative accepts {"mpn": ...} objects or bare part number strings
func parseAlternative(raw json.RawMessage) (types.Alternative, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return types.Alternative{}, fmt.Errorf("empty part number")
		}
		return types.Alternative{MPN: strings.TrimSpace(s)}, nil
	}

	var a alternativePayload
	if err := json.Unmarshal(raw, &a); err != nil {
		return types.Alternative{}, err
	}
	if strings.TrimSpace(a.MPN) == "" {
		return types.Alternative{}, fmt.Errorf("missing mpn")
	}
	return types.Alternative{MPN: strings.TrimSpace(a.MPN), Manufacturer: a.Manufacturer, Notes: a.Notes}, nil
}
