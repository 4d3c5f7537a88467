package excerpt

import (
	"regexp"
	"strings"

	"github.com/findingsimple/simple-search/normalize"
)

const (
	startMark = "<mark>"
	endMark   = "</mark>"
)

var markGapRegex = regexp.MustCompile(endMark + `\s+` + startMark)

// Highlight wraps each whole-word, case-insensitive occurrence of the
// query's terms in <mark> elements. Text inside markup tags or inside
// an existing <mark> element is left alone, so highlighting an already
// highlighted string never double-wraps. Adjacent highlights merge into
// a single element.
func Highlight(text, query string) string {
	terms := normalize.Terms(query)
	if len(terms) == 0 {
		return text
	}

	for _, term := range terms {
		text = wrapTerm(text, term)
	}

	// Collapse back-to-back and space-separated highlight pairs into
	// one span so adjacent matched terms don't produce broken nested
	// markup.
	text = strings.ReplaceAll(text, endMark+startMark, "")
	text = markGapRegex.ReplaceAllString(text, " ")

	return text
}

// wrapTerm highlights one term across the text's non-tag segments.
func wrapTerm(text, term string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)

	var (
		sb     strings.Builder
		inMark bool
	)

	for len(text) > 0 {
		open := strings.IndexByte(text, '<')
		if open == -1 {
			sb.WriteString(highlightSegment(re, text, inMark))

			break
		}

		sb.WriteString(highlightSegment(re, text[:open], inMark))

		rest := text[open:]
		end := strings.IndexByte(rest, '>')
		if end == -1 {
			// Dangling tag, emit verbatim.
			sb.WriteString(rest)

			break
		}

		tag := rest[:end+1]
		switch strings.ToLower(tag) {
		case startMark:
			inMark = true
		case endMark:
			inMark = false
		}

		sb.WriteString(tag)
		text = rest[end+1:]
	}

	return sb.String()
}

func highlightSegment(re *regexp.Regexp, segment string, inMark bool) string {
	if segment == "" || inMark {
		return segment
	}

	return re.ReplaceAllString(segment, startMark+"$0"+endMark)
}
