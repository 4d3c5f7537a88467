package relevance

import (
	"context"
	"strings"

	"github.com/findingsimple/simple-search/content"
	"github.com/findingsimple/simple-search/normalize"
)

// firstWindowSize is the number of leading body words the first-fifty
// factor inspects.
const firstWindowSize = 50

// scoringContext carries every piece of pre-normalized document state a
// factor evaluation needs. It is built once per (document, query)
// computation and threaded through all factor calls, so no factor
// depends on ambient state.
type scoringContext struct {
	// Normalized, lowercased document title.
	title string

	// Rendered, normalized, lowercased document body.
	body string

	// The first 50 whitespace-delimited words of the body.
	firstFifty string

	// Lowercased permalink.
	permalink string

	// Lowercased taxonomy term names assigned to the document.
	taxonomy map[string]struct{}

	// Number of unique terms in the query being scored.
	termCount int
}

// newScoringContext renders and normalizes the document once for the
// given query shape.
func newScoringContext(
	ctx context.Context,
	renderer content.Renderer,
	doc *content.Document,
	termCount int,
) *scoringContext {

	body := strings.ToLower(normalize.Normalize(renderer.Render(ctx, doc.Body)))

	words := strings.Fields(body)
	if len(words) > firstWindowSize {
		words = words[:firstWindowSize]
	}

	taxonomy := make(map[string]struct{}, len(doc.TaxonomyTerms))
	for _, term := range doc.TaxonomyTerms {
		taxonomy[strings.ToLower(normalize.Normalize(term))] = struct{}{}
	}

	return &scoringContext{
		title:      strings.ToLower(normalize.Normalize(doc.Title)),
		body:       body,
		firstFifty: strings.Join(words, " "),
		permalink:  strings.ToLower(doc.Permalink),
		taxonomy:   taxonomy,
		termCount:  termCount,
	}
}
