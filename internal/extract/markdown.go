package extract

import (
	"regexp"
	"strings"
)

// Glyphs used when flattening markup for LINE's plain-text surface.
const (
	headingGlyph = "■ "
	bulletGlyph  = "・"
)

var (
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	boldAltRe   = regexp.MustCompile(`__(.*?)__`)
	headingRe   = regexp.MustCompile(`^#{1,6}\s+`)
	bulletRe    = regexp.MustCompile(`^(\s*)[-*]\s+`)
	codeFenceRe = regexp.MustCompile("^```[a-zA-Z0-9]*\\s*$")
)

// NormalizeMarkdown flattens the lightweight markup the generator tends
// to produce into plain-text equivalents: bold markers unwrapped,
// headings prefixed with a glyph, list markers replaced with a bullet
// glyph, backticks removed. LINE text messages render markdown
// literally, so any leftover token is visible noise to the end user.
func NormalizeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		// Code fence lines carry no content of their own.
		if codeFenceRe.MatchString(strings.TrimRight(line, " \t")) {
			continue
		}

		line = boldRe.ReplaceAllString(line, "$1")
		line = boldAltRe.ReplaceAllString(line, "$1")
		line = headingRe.ReplaceAllString(line, headingGlyph)
		line = bulletRe.ReplaceAllString(line, "${1}"+bulletGlyph)
		line = strings.ReplaceAll(line, "`", "")

		out = append(out, line)
	}

	return collapseBlankLines(strings.Join(out, "\n"))
}

// collapseBlankLines trims the text and squeezes runs of blank lines
// (left behind by stripped tag blocks) down to one.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
