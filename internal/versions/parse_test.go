package versions

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WellFormed(t *testing.T) {
	t.Parallel()

	text := "Here are your versions.\n\n" +
		"## Version 1: Spring Launch\nFresh picks for the season.\n\n" +
		"## Version 2: Bold\nLine one.\nLine two.\n" +
		"## Version 3: Calm\nQuiet copy."

	sections := Parse(text)
	require.Len(t, sections, 3)
	assert.Equal(t, Section{Number: 1, Title: "Spring Launch", Body: "Fresh picks for the season."}, sections[0])
	assert.Equal(t, Section{Number: 2, Title: "Bold", Body: "Line one.\nLine two."}, sections[1])
	assert.Equal(t, Section{Number: 3, Title: "Calm", Body: "Quiet copy."}, sections[2])
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	for k := 1; k <= 8; k++ {
		var b strings.Builder
		for i := 1; i <= k; i++ {
			fmt.Fprintf(&b, "## Version %d: Title %d\nBody %d\n\n", i, i, i)
		}
		sections := Parse(b.String())
		require.Len(t, sections, k)
		for i, s := range sections {
			assert.Equal(t, fmt.Sprintf("Title %d", i+1), s.Title)
			assert.Equal(t, fmt.Sprintf("Body %d", i+1), s.Body)
		}
	}
}

func TestParse_HeadingVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		line  string
		title string
	}{
		{"markdown h3", "### Version 1 - Tagline", "Tagline"},
		{"bold", "**Version 1:** Tagline", "Tagline"},
		{"bold with title", "**Version 1: Tagline**", "Tagline"},
		{"variant", "Variant 1) Tagline", "Tagline"},
		{"option lowercase", "option 1. Tagline", "Tagline"},
		{"bullet", "- VERSION 1 — Tagline", "Tagline"},
		{"numbered list", "1. Version 1: Tagline", "Tagline"},
		{"no title", "## Version 1", ""},
		{"chinese", "### 版本一：标语", "标语"},
		{"chinese scheme", "方案 1：标语", "标语"},
		{"crlf", "## Version 1: Tagline\r", "Tagline"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sections := Parse(tc.line + "\nbody text")
			require.Len(t, sections, 1)
			assert.Equal(t, 1, sections[0].Number)
			assert.Equal(t, tc.title, sections[0].Title)
			assert.Equal(t, "body text", sections[0].Body)
		})
	}
}

func TestParse_PlainHeadingsAreNotDelimiters(t *testing.T) {
	t.Parallel()

	text := "## Summer Sale\nEverything must go.\n## Details\nMore."
	sections := Parse(text)
	require.Len(t, sections, 1)
	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, strings.TrimSpace(text), sections[0].Body)
}

func TestParse_NoDelimiter(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "just one block\nof text\n", "Optional 2 items"} {
		sections := Parse(text)
		require.Len(t, sections, 1, "input %q", text)
		assert.Equal(t, strings.TrimSpace(text), sections[0].Body)
		assert.Equal(t, 0, sections[0].Number)
	}
}

func TestParse_TitleLineLifted(t *testing.T) {
	t.Parallel()

	text := "Version 1\n\nTitle: Morning Brew\nStart the day right.\n" +
		"Version 2\n标题：晚安\n好梦。\n" +
		"Version 3: Inline\nTitle: stays in body\n"

	sections := Parse(text)
	require.Len(t, sections, 3)
	assert.Equal(t, "Morning Brew", sections[0].Title)
	assert.Equal(t, "Start the day right.", sections[0].Body)
	assert.Equal(t, "晚安", sections[1].Title)
	assert.Equal(t, "好梦。", sections[1].Body)
	assert.Equal(t, "Inline", sections[2].Title)
	assert.Equal(t, "Title: stays in body", sections[2].Body)
}

func TestParseNumber(t *testing.T) {
	t.Parallel()

	cases := map[string]int{"1": 1, "12": 12, "一": 1, "十": 10, "十二": 12, "三十": 30, "零": 0}
	for in, want := range cases {
		assert.Equal(t, want, parseNumber(in), "input %q", in)
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	sections := []Section{{Body: "a"}, {Body: "b"}, {Body: "c"}}
	assert.Len(t, Match(sections, 2), 2)
	assert.Equal(t, "b", Match(sections, 2)[1].Body)
	assert.Len(t, Match(sections, 5), 3)
	assert.Empty(t, Match(sections, 0))
}

func FuzzParse(f *testing.F) {
	seeds := []string{
		"",
		"plain text",
		"## Version 1: A\nbody\n## Version 2: B\nbody",
		"**Option 三** —\nTitle:\n",
		"版本十一：x\n标题：y",
		"Version 1\r\nVersion 2\r\n",
		"\xff\xfe## Version 9999999999999999999999",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, text string) {
		sections := Parse(text)
		if len(sections) == 0 {
			t.Fatal("Parse returned no sections")
		}
		for _, s := range sections {
			if s.Body != strings.TrimSpace(s.Body) {
				t.Fatalf("body not trimmed: %q", s.Body)
			}
		}
		if len(Match(sections, 3)) > 3 {
			t.Fatal("Match exceeded slot count")
		}
	})
}
