package classify

import (
	"regexp"
	"strings"

	"pcb-cost/core/types"
)

type packageRule struct {
	pkg     types.PackageType
	pattern *regexp.Regexp
}

// word anchors a package family name at a token start
func word(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^A-Z])(?:` + expr + `)`)
}

// size anchors an imperial chip size code between non-digits
func size(codes string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^0-9])(?:` + codes + `)(?:[^0-9]|$)`)
}

// packageRules are tried in order against the upper-cased footprint name
var packageRules = []packageRule{
	{types.PackageBGA, word(`[A-Z]{0,3}BGA|LGA`)},
	{types.PackageQFN, word(`[A-Z]{0,2}QFN|[A-Z]{0,2}DFN|[A-Z]?SON`)},
	{types.PackageQFP, word(`[A-Z]{0,2}QFP`)},
	{types.PackageSOIC, word(`SOIC|[A-Z]{0,2}SOP|SO-?\d+`)},
	{types.PackageSMDMedium, word(`SOT|SOD`)},
	{types.PackageThroughHole, word(`THT|[A-Z]?DIP|TO-?\d+|AXIAL|RADIAL`)},
	{types.PackageConnector, word(`CONN|HEADER|PINHEADER|SOCKET|JST|USB`)},
	{types.PackageSMDSmall, size(`01005|0201|0402|0603`)},
	{types.PackageSMDMedium, size(`0805|1206|1210`)},
	{types.PackageSMDLarge, size(`1812|2010|2512|2920`)},
}

// categoryPackages is the fallback when the BOM has no footprint
var categoryPackages = map[types.Category]types.PackageType{
	types.CategoryResistor:    types.PackageSMDMedium,
	types.CategoryCapacitor:   types.PackageSMDMedium,
	types.CategoryInductor:    types.PackageSMDMedium,
	types.CategoryDiode:       types.PackageSMDMedium,
	types.CategoryLED:         types.PackageSMDMedium,
	types.CategoryIC:          types.PackageSOIC,
	types.CategoryConnector:   types.PackageConnector,
	types.CategoryCrystal:     types.PackageSMDMedium,
	types.CategoryTransistor:  types.PackageSMDMedium,
	types.CategorySwitch:      types.PackageThroughHole,
	types.CategoryRelay:       types.PackageThroughHole,
	types.CategoryFuse:        types.PackageSMDMedium,
	types.CategoryTransformer: types.PackageThroughHole,
	types.CategorySensor:      types.PackageQFN,
}

// ClassifyPackage maps item's footprint text to a package type. An empty
// footprint falls back to the default for category; an unrecognised one is
// unknown unless the part is a connector.
func ClassifyPackage(item types.LineItem, category types.Category) types.PackageType {
	text := strings.ToUpper(strings.TrimSpace(item.Package))
	if text == "" {
		return DefaultPackage(category)
	}
	// KiCad style "Library:Footprint"
	if idx := strings.LastIndexByte(text, ':'); idx >= 0 && idx < len(text)-1 {
		text = text[idx+1:]
	}

	for _, rule := range packageRules {
		if rule.pattern.MatchString(text) {
			return rule.pkg
		}
	}
	if category == types.CategoryConnector {
		return types.PackageConnector
	}
	return types.PackageUnknown
}

// DefaultPackage returns the typical package of category
func DefaultPackage(category types.Category) types.PackageType {
	if pkg, ok := categoryPackages[category]; ok {
		return pkg
	}
	return types.PackageOther
}
