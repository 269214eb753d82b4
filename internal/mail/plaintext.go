package mail

import (
	"regexp"
	"strings"
)

var (
	brTagRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// DerivePlainText converts an HTML body into the plain-text alternative used
// when a message carries no explicit text part. <br> tags become newlines,
// every other tag is stripped, then whitespace runs collapse to one space.
// The derivation is idempotent.
func DerivePlainText(html string) string {
	text := brTagRe.ReplaceAllString(html, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
