// Package excerpt selects the content window that best covers a search
// query's terms and renders it with the matched terms highlighted.
package excerpt

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/findingsimple/simple-search/content"
	"github.com/findingsimple/simple-search/normalize"
)

// DefaultWindowSize is the excerpt window length in whitespace tokens.
const DefaultWindowSize = 55

var newlineRegex = regexp.MustCompile(`\r\n|\n\r|\n|\r`)

// buildingKey marks a context that is already inside an excerpt build.
// Rendering a document body may itself request an excerpt for the same
// document; the marker suppresses the nested invocation instead of
// recursing.
type buildingKey struct{}

func markBuilding(ctx context.Context) context.Context {
	return context.WithValue(ctx, buildingKey{}, true)
}

func isBuilding(ctx context.Context) bool {
	building, _ := ctx.Value(buildingKey{}).(bool)

	return building
}

// Config defines configurations for the excerpt builder.
type Config struct {
	// Renderer that expands shortcodes / macros in document bodies.
	// If not specified, bodies pass through unchanged.
	Renderer content.Renderer

	// WindowSize is the excerpt length in tokens. If not specified, a
	// default of 55 tokens will be used instead.
	WindowSize int

	// The logger to use. If not defined an output-discarding logger
	// will be used instead.
	Logger *logrus.Entry
}

func (config *Config) validate() error {
	var err error

	if config.Renderer == nil {
		config.Renderer = content.NopRenderer()
	}

	if config.WindowSize < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for window size, must be >= 0"))
	}

	if config.WindowSize == 0 {
		config.WindowSize = DefaultWindowSize
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Builder generates query-specific excerpts from document bodies.
type Builder struct {
	config Config
}

// NewBuilder creates and returns a fully configured excerpt builder.
func NewBuilder(config Config) (*Builder, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("excerpt builder: config validation failed: %w", err)
	}

	return &Builder{config: config}, nil
}

// Build returns the excerpt of body that best covers the query's terms,
// bounded by ellipses per the window start rule. A query with no usable
// terms, a nested invocation or any build failure returns the body
// unchanged.
func (b *Builder) Build(ctx context.Context, body, query string) (excerpt string) {
	if isBuilding(ctx) {
		return body
	}

	terms := normalize.Terms(query)
	if len(terms) == 0 {
		return body
	}

	// Any failure while building degrades to the unprocessed text
	// rather than failing the search results page.
	defer func() {
		if r := recover(); r != nil {
			b.config.Logger.WithField("panic", r).Warn("excerpt build failed")
			excerpt = body
		}
	}()

	ctx = markBuilding(ctx)

	text := b.config.Renderer.Render(ctx, body)
	text = normalize.StripInvisibles(text)
	text = normalize.StripTags(text)
	text = newlineRegex.ReplaceAllString(text, " ")

	words := strings.Fields(text)
	window, start := bestWindow(words, terms, b.config.WindowSize)

	excerpt = strings.Join(window, " ")
	if !start {
		excerpt = "..." + excerpt
	}

	return excerpt + "..."
}

// bestWindow slides a non-overlapping window across the token sequence
// and returns the window with the most distinct term hits, along with a
// flag reporting whether it starts at token zero. Ties keep the
// earliest window; no hits anywhere falls back to the leading window.
func bestWindow(words, terms []string, size int) ([]string, bool) {
	if len(words) <= size {
		return words, true
	}

	bestHits := 0
	bestStart := -1

	for i := 0; i < len(words); i += size {
		if i+size > len(words) {
			// Clip the final window to the tail instead of
			// padding past it.
			i = len(words) - size
		}

		hits := termHits(words[i:i+size], terms)
		if hits > bestHits {
			bestHits = hits
			bestStart = i
		}

		if i+size >= len(words) {
			break
		}
	}

	if bestStart == -1 {
		return words[:size], true
	}

	return words[bestStart : bestStart+size], bestStart == 0
}

// termHits counts how many distinct terms occur in the window. Matching
// is case-insensitive, with title-cased and all-caps fallbacks kept
// from the original matcher.
func termHits(window, terms []string) int {
	padded := " " + strings.Join(window, " ")
	lowered := strings.ToLower(padded)

	var hits int

	for _, term := range terms {
		needle := " " + term

		if strings.Contains(lowered, needle) {
			hits++

			continue
		}

		if strings.Contains(padded, " "+titleCase(term)) ||
			strings.Contains(padded, " "+strings.ToUpper(term)) {
			hits++
		}
	}

	return hits
}

func titleCase(term string) string {
	if term == "" {
		return term
	}

	return strings.ToUpper(term[:1]) + term[1:]
}
