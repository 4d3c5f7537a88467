// Package normalize prepares raw, markup-bearing text for relevance
// scoring and for deriving storage keys from search queries.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Elements that carry no visible text. They are removed together with
// their content before the remaining markup is stripped, so script or
// style bodies never leak into the normalized text.
var invisibleElements = []string{
	"style", "script", "object", "embed", "applet",
	"noscript", "noembed", "iframe", "del",
}

var (
	invisibleRegexes   []*regexp.Regexp
	shortcodeRegex     = regexp.MustCompile(`\[[^\[\]]*\]`)
	punctuationRegex   = regexp.MustCompile(`[\p{P}\p{S}]+`)
	repeatedSpaceRegex = regexp.MustCompile(`\s+`)

	// Smart quotes and the mojibake sequences a mis-decoded page leaves
	// behind. Apostrophe-like sequences are deleted outright while
	// dash-like sequences become a word separator. Longer sequences are
	// listed before their prefixes so the replacer matches them first.
	punctuationReplacer = strings.NewReplacer(
		"&#8217;", "",
		"'", "",
		"’", "",
		"‘", "",
		"„", "",
		"“", "",
		"”", "",
		"´", "",
		"·", "",
		"…", "",
		"€", "",
		"&shy;", "",
		"­", "",
		"—", " ",
		"–", " ",
		"×", " ",
		"â€™", "",
		"â€˜", "",
		"â€ž", "",
		"â€¦", "",
		"â€œ", "",
		"â€”", " ",
		"â€“", " ",
		"â€", "",
		"Â´", "",
		"Â·", "",
		"â‚¬", "",
		"Ã—", " ",
	)
)

func init() {
	for _, element := range invisibleElements {
		invisibleRegexes = append(invisibleRegexes, regexp.MustCompile(
			`(?si)<`+element+`[^>]*?>.*?</`+element+`>`,
		))
	}
}

// policyPool recycles bluemonday policies since they are not safe for
// concurrent use.
var policyPool = sync.Pool{
	New: func() interface{} {
		return bluemonday.StrictPolicy()
	},
}

// Normalize strips a string of markup, punctuation and invisible
// elements, leaving single-space separated words. Invisible elements
// lose their content as well as their tags. Normalize is idempotent and
// never case-folds: callers lowercase as needed.
func Normalize(text string) string {
	text = StripInvisibles(text)
	text = stripTags(text)
	text = punctuationReplacer.Replace(text)
	text = punctuationRegex.ReplaceAllString(text, " ")
	text = repeatedSpaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// StripInvisibles removes markup elements that render no visible text,
// together with their content.
func StripInvisibles(text string) string {
	for _, re := range invisibleRegexes {
		text = re.ReplaceAllString(text, " ")
	}

	return text
}

// StripBare additionally removes embedded shortcodes / macros before
// normalizing. Used when deriving storage keys, where a shortcode in the
// source text must never influence the key.
func StripBare(text string) string {
	return Normalize(shortcodeRegex.ReplaceAllString(text, " "))
}

// Terms splits a query into its unique, lowercased terms, preserving
// first-seen order.
func Terms(query string) []string {
	fields := strings.Fields(strings.ToLower(Normalize(query)))

	var terms []string
	seen := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		if _, dup := seen[field]; dup {
			continue
		}

		seen[field] = struct{}{}
		terms = append(terms, field)
	}

	return terms
}

// StripTags removes markup tags but keeps their content, decoding any
// HTML entities the sanitizer leaves behind. Unlike Normalize it
// preserves punctuation, which excerpt rendering needs intact.
func StripTags(text string) string {
	return stripTags(text)
}

func stripTags(text string) string {
	policy := policyPool.Get().(*bluemonday.Policy)
	text = policy.Sanitize(text)
	policyPool.Put(policy)

	return html.UnescapeString(text)
}
