package tts

import (
	"regexp"
	"strings"
)

// The assistant's answers arrive as markdown. Everything here rewrites that
// markup into plain prose a synthesis engine can read aloud.
var (
	reCodeFence  = regexp.MustCompile("(?m)^```[^\n]*$")
	reInlineCode = regexp.MustCompile("`([^`]*)`")
	reImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reBoldItalic = regexp.MustCompile(`(\*\*|__|\*|_)([^*_]+)(\*\*|__|\*|_)`)
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	reQuote      = regexp.MustCompile(`(?m)^>\s?`)
	reListMarker = regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s+`)
	reHRule      = regexp.MustCompile(`(?m)^\s*([-_*]\s*){3,}$`)
	// Pictographs, arrows, bullets and box-drawing characters that show up
	// in dashboard answers but have no spoken value.
	reDecorative = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2190}-\x{21FF}\x{2500}-\x{25FF}\x{2022}\x{FE0F}\x{200D}]`)
	reHSpace     = regexp.MustCompile(`[ \t]+`)
	reBlankRun   = regexp.MustCompile(`\n{3,}`)
)

// Normalize strips formatting artifacts and returns prose suitable for
// speech. Paragraph breaks (blank lines) survive so the chunker can honor
// them; all other whitespace runs collapse to single spaces. Always returns
// a string, empty when the input carries no speakable content.
func Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	out := strings.ReplaceAll(text, "\r\n", "\n")
	out = reCodeFence.ReplaceAllString(out, "")
	out = reImage.ReplaceAllString(out, "$1")
	out = reLink.ReplaceAllString(out, "$1")
	out = reInlineCode.ReplaceAllString(out, "$1")
	// Applied twice so nested emphasis like **bold with *italic*** unwraps.
	out = reBoldItalic.ReplaceAllString(out, "$2")
	out = reBoldItalic.ReplaceAllString(out, "$2")
	out = strings.ReplaceAll(out, "|", " ")
	out = reHRule.ReplaceAllString(out, "")
	out = reHeading.ReplaceAllString(out, "")
	out = reQuote.ReplaceAllString(out, "")
	out = reListMarker.ReplaceAllString(out, "")
	out = reDecorative.ReplaceAllString(out, "")

	out = reHSpace.ReplaceAllString(out, " ")
	out = reBlankRun.ReplaceAllString(out, "\n\n")

	var lines []string
	for _, line := range strings.Split(out, "\n") {
		lines = append(lines, strings.TrimSpace(line))
	}
	out = strings.Join(lines, "\n")
	out = reBlankRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
