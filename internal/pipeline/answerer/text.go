package answerer

import (
	"regexp"
	"strings"
)

var (
	codeFence     = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9_-]*\\s*$")
	inlineCode    = regexp.MustCompile("`([^`]*)`")
	image         = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	link          = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	citationTag   = regexp.MustCompile(`(?i)\[\s*(uniq_id|doc_id|id|source|citation)\s*:[^\]]*\]`)
	strong        = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	emphasis      = regexp.MustCompile(`\*([^*\n]+)\*`)
	heading       = regexp.MustCompile(`^\s{0,3}#{1,6}\s+`)
	bullet        = regexp.MustCompile(`^\s*([-*+•]|\d+[.)])\s+`)
	blockquote    = regexp.MustCompile(`^\s*>\s?`)
	tableRule     = regexp.MustCompile(`^\s*\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)*\|?\s*$`)
	horizontal    = regexp.MustCompile(`^\s*([-*_]\s*){3,}$`)
	tableCellSep  = regexp.MustCompile(`\s*\|\s*`)
	terminalPunct = regexp.MustCompile(`[.!?:;,]$`)
)

// plainText strips markdown structure so the text can be read aloud, then
// collapses whitespace. List items and headings become sentences.
func plainText(s string) string {
	s = codeFence.ReplaceAllString(s, "")
	s = image.ReplaceAllString(s, "$1")
	s = link.ReplaceAllString(s, "$1")
	s = citationTag.ReplaceAllString(s, "")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = strong.ReplaceAllString(s, "$2")
	s = emphasis.ReplaceAllString(s, "$1")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if tableRule.MatchString(line) || horizontal.MatchString(line) {
			continue
		}
		structural := heading.MatchString(line) || bullet.MatchString(line)
		line = heading.ReplaceAllString(line, "")
		line = bullet.ReplaceAllString(line, "")
		line = blockquote.ReplaceAllString(line, "")
		if strings.Contains(line, "|") {
			line = strings.Trim(strings.TrimSpace(line), "|")
			line = tableCellSep.ReplaceAllString(strings.TrimSpace(line), ", ")
			structural = true
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if structural && !terminalPunct.MatchString(line) {
			line += "."
		}
		out = append(out, line)
	}
	return strings.Join(strings.Fields(strings.Join(out, " ")), " ")
}
