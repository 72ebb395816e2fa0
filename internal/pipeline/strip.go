package pipeline

import (
	"regexp"
	"strings"
)

// Chat transports render markdown literally, so drafts are flattened
// to plain text before delivery.
var (
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.+?)\*`)
	headerRe = regexp.MustCompile(`(?m)^#{1,6}\s*`)
)

// StripMarkdown removes the markdown the models keep emitting despite
// the prompt: bold, italics, headers, and stray asterisks.
func StripMarkdown(text string) string {
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = headerRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "*", "")
	return strings.TrimSpace(text)
}
