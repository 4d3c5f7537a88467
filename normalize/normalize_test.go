package normalize

import (
	"testing"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(new(NormalizeTestSuite))
var _ = check.Suite(new(QueryKeyTestSuite))

// Test registers the [check] library with the go testing library and enables
// the running of the test suite using the go testing library.
func Test(t *testing.T) {
	check.TestingT(t)
}

type NormalizeTestSuite struct{}

func (s *NormalizeTestSuite) TestNormalize(c *check.C) {
	testCases := []struct {
		input    string
		expected string
	}{
		{
			input:    "plain words stay intact",
			expected: "plain words stay intact",
		},
		{
			input:    "<p>tags are <b>stripped</b></p> but content kept",
			expected: "tags are stripped but content kept",
		},
		{
			input:    "before <script>var hidden = true;</script> after",
			expected: "before after",
		},
		{
			input:    "keep <style type=\"text/css\">body { color: red }</style>this",
			expected: "keep this",
		},
		{
			input:    "an <iframe src=\"x\">embedded frame</iframe> vanishes",
			expected: "an vanishes",
		},
		{
			input:    "smart&#8217;quote and it's friends",
			expected: "smartquote and its friends",
		},
		{
			input:    "dashes â€” become â€“ separators",
			expected: "dashes become separators",
		},
		{
			input:    "punctuation!!! runs... collapse, to: spaces",
			expected: "punctuation runs collapse to spaces",
		},
		{
			input:    "   whitespace\t\truns\n\ncollapse   ",
			expected: "whitespace runs collapse",
		},
		{
			input:    "Case Is NOT Folded",
			expected: "Case Is NOT Folded",
		},
	}

	for index, tc := range testCases {
		c.Logf("spec %d", index)
		c.Assert(Normalize(tc.input), check.Equals, tc.expected)
	}
}

func (s *NormalizeTestSuite) TestNormalizeIsIdempotent(c *check.C) {
	testCases := []string{
		"already clean text",
		"<div><script>x</script>nested <em>markup, with; punctuation!?</em></div>",
		"mixed â€™ mojibake â€” and &amp; entities",
		"",
		"!!!...???",
	}

	for index, input := range testCases {
		c.Logf("spec %d", index)
		once := Normalize(input)
		c.Assert(Normalize(once), check.Equals, once)
	}
}

func (s *NormalizeTestSuite) TestStripBareRemovesShortcodes(c *check.C) {
	got := StripBare(`intro [gallery ids="1,2"] outro [contact]`)
	c.Assert(got, check.Equals, "intro outro")
}

func (s *NormalizeTestSuite) TestTerms(c *check.C) {
	testCases := []struct {
		input    string
		expected []string
	}{
		{
			input:    "Alpha beta ALPHA",
			expected: []string{"alpha", "beta"},
		},
		{
			input:    "single",
			expected: []string{"single"},
		},
		{
			input:    "   ",
			expected: nil,
		},
	}

	for index, tc := range testCases {
		c.Logf("spec %d", index)
		c.Assert(Terms(tc.input), check.DeepEquals, tc.expected)
	}
}

func (s *NormalizeTestSuite) TestIsStopWord(c *check.C) {
	c.Assert(IsStopWord("the"), check.Equals, true)
	c.Assert(IsStopWord("The"), check.Equals, true)
	c.Assert(IsStopWord("giraffe"), check.Equals, false)
}

type QueryKeyTestSuite struct{}

func (s *QueryKeyTestSuite) TestQueryKeyDerivation(c *check.C) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: "hello world", expected: "hello_world"},
		{input: "  Hello,   WORLD!  ", expected: "hello_world"},
		{input: "hello's world", expected: "hellos_world"},
		{input: "hello [embed]world[/embed]", expected: "hello_world"},
		{input: "~", expected: ""},
		{input: "", expected: ""},
	}

	for index, tc := range testCases {
		c.Logf("spec %d", index)
		c.Assert(QueryKey(tc.input), check.Equals, tc.expected)
	}
}

func (s *QueryKeyTestSuite) TestEquivalentQueriesShareAKey(c *check.C) {
	variants := []string{
		"climate change",
		"Climate  Change",
		"climate, change!",
		"CLIMATE CHANGE...",
	}

	for index, variant := range variants {
		c.Logf("spec %d", index)
		c.Assert(QueryKey(variant), check.Equals, "climate_change")
	}
}

func (s *QueryKeyTestSuite) TestQueryFromKeyInvertsJoin(c *check.C) {
	c.Assert(QueryFromKey("hello_world"), check.Equals, "hello world")
	c.Assert(QueryFromKey(""), check.Equals, "")
}
