package versions

import (
	"regexp"
	"strconv"
	"strings"
)

// Section is one version found in generated text.
type Section struct {
	// Number is the version number written in the heading, 0 when the text
	// had no headings.
	Number int
	Title  string
	Body   string
}

var (
	// delimiterRegex matches a heading line naming a version, e.g.
	// "## Version 2: Spring launch", "**Option 3** - Bold", "- Variant 1.",
	// or "### 版本二：标题".
	delimiterRegex = regexp.MustCompile(
		`(?i)^\s*(?:#{1,6}\s*)?(?:[-*+]\s+|\d+[.)]\s+)?(?:[*_]{1,3}\s*)?` +
			`(version|variant|option|版本|方案)\s*([0-9]+|[一二三四五六七八九十]+)` +
			`[\s:：\-–—.)*_]*(.*)$`,
	)

	// titleLineRegex matches a "Title: ..." line at the top of a section.
	titleLineRegex = regexp.MustCompile(`(?i)^\s*(?:[*_]{1,3})?\s*(?:title|标题)\s*(?:[*_]{1,3})?\s*[:：]\s*(.+)$`)
)

var chineseDigits = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9, '十': 10,
}

// Parse splits text into sections at version headings. Text before the
// first heading is dropped. Without any heading the whole trimmed text is
// returned as a single section.
func Parse(text string) []Section {
	var (
		sections []Section
		current  *Section
		body     []string
	)

	flush := func() {
		if current == nil {
			return
		}
		finishSection(current, body)
		sections = append(sections, *current)
		body = body[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := delimiterRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &Section{
				Number: parseNumber(m[2]),
				Title:  cleanTitle(m[3]),
			}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	if len(sections) == 0 {
		return []Section{{Body: strings.TrimSpace(text)}}
	}
	return sections
}

// finishSection sets the body and, when the heading carried no title,
// lifts a leading "Title:" line out of the body.
func finishSection(s *Section, lines []string) {
	if s.Title == "" {
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if m := titleLineRegex.FindStringSubmatch(line); m != nil {
				s.Title = cleanTitle(m[1])
				lines = lines[i+1:]
			}
			break
		}
	}
	s.Body = strings.TrimSpace(strings.Join(lines, "\n"))
}

func cleanTitle(title string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(title), "*_#\"“”"))
}

func parseNumber(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	runes := []rune(s)
	switch len(runes) {
	case 1:
		return chineseDigits[runes[0]]
	case 2:
		// 十一..十九 and 二十..九十
		if runes[0] == '十' {
			return 10 + chineseDigits[runes[1]]
		}
		if runes[1] == '十' {
			return chineseDigits[runes[0]] * 10
		}
	}
	return 0
}

// Match aligns sections with n placeholder slots by position. Surplus
// sections are dropped; a shortfall leaves the result shorter than n.
func Match(sections []Section, n int) []Section {
	if n <= 0 {
		return nil
	}
	if len(sections) > n {
		return sections[:n]
	}
	return sections
}
