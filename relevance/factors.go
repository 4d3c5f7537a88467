package relevance

import "strings"

// Relevance weights follow the importance scale the original ranking
// heuristic was tuned against.
const (
	shortCircuitImportance = 100.0
	veryHighImportance     = 13.0
	moderateImportance     = 5.0
	lowImportance          = 3.0
	minimalImportance      = 2.0
)

// factorKind enumerates the closed set of keyword-specific ranking
// factors. Each kind carries its own weight and evaluation function so
// factor application never dispatches on loosely-typed names.
type factorKind uint8

const (
	factorTitle factorKind = iota
	factorTitlePrefix
	factorFirstFifty
	factorPermalink
	factorFrequency
	factorDensity
	factorTaxonomy

	numFactorKinds = 7
)

func (k factorKind) String() string {
	switch k {
	case factorTitle:
		return "title"
	case factorTitlePrefix:
		return "title-beginning"
	case factorFirstFifty:
		return "first-fifty"
	case factorPermalink:
		return "permalink"
	case factorFrequency:
		return "frequency"
	case factorDensity:
		return "density"
	case factorTaxonomy:
		return "taxonomy"
	default:
		return "unknown"
	}
}

// factor couples a kind with its weight and evaluation function. eval
// returns the contribution scale in [0, 1]: binary factors return 0 or
// 1 while frequency and density return their linear scale. The caller
// multiplies by the weight (or weight / termCount at term level).
type factor struct {
	kind   factorKind
	weight float64
	eval   func(sc *scoringContext, needle string) float64
}

// factorTable is evaluated in a fixed order, though the resulting score
// is independent of that order.
var factorTable = []factor{
	{kind: factorTitle, weight: veryHighImportance, eval: evalTitle},
	{kind: factorTitlePrefix, weight: veryHighImportance, eval: evalTitlePrefix},
	{kind: factorFirstFifty, weight: moderateImportance, eval: evalFirstFifty},
	{kind: factorPermalink, weight: lowImportance, eval: evalPermalink},
	{kind: factorFrequency, weight: minimalImportance, eval: evalFrequency},
	{kind: factorDensity, weight: minimalImportance, eval: evalDensity},
	{kind: factorTaxonomy, weight: minimalImportance, eval: evalTaxonomy},
}

func evalTitle(sc *scoringContext, needle string) float64 {
	return binaryScale(strings.Contains(sc.title, needle))
}

func evalTitlePrefix(sc *scoringContext, needle string) float64 {
	return binaryScale(strings.HasPrefix(sc.title, needle))
}

func evalFirstFifty(sc *scoringContext, needle string) float64 {
	return binaryScale(strings.Contains(sc.firstFifty, needle))
}

func evalPermalink(sc *scoringContext, needle string) float64 {
	return binaryScale(strings.Contains(sc.permalink, needle))
}

// evalFrequency scales linearly with the occurrence count, saturating
// at 100 occurrences.
func evalFrequency(sc *scoringContext, needle string) float64 {
	occurrences := strings.Count(sc.body, needle)
	if occurrences > 100 {
		occurrences = 100
	}

	return float64(occurrences) / 100
}

// evalDensity divides the occurrence count by the query's term count, a
// deliberately crude density proxy retained from the original
// heuristic, saturating at 1.
func evalDensity(sc *scoringContext, needle string) float64 {
	density := float64(strings.Count(sc.body, needle)) / float64(sc.termCount)
	if density > 1 {
		density = 1
	}

	return density
}

func evalTaxonomy(sc *scoringContext, needle string) float64 {
	_, found := sc.taxonomy[needle]

	return binaryScale(found)
}

func binaryScale(matched bool) float64 {
	if matched {
		return 1
	}

	return 0
}
