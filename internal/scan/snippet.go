package scan

import (
	"strings"
	"unicode/utf8"

	"guardian/internal/model"
	"guardian/internal/redact"
)

const snippetContext = 80

// buildSnippet returns the match with up to 80 bytes of context on each
// side, on one line, with ellipses where the text was cut. Secret matches
// are masked before any other redaction runs.
func buildSnippet(content string, span model.Span, secret bool) string {
	start, end := span.Start, span.End
	if start < 0 || end < start || start > len(content) {
		return ""
	}
	if end > len(content) {
		end = len(content)
	}
	left := start - snippetContext
	right := end + snippetContext
	if left < 0 {
		left = 0
	}
	if right > len(content) {
		right = len(content)
	}
	for left > 0 && !utf8.RuneStart(content[left]) {
		left--
	}
	for right < len(content) && !utf8.RuneStart(content[right]) {
		right++
	}

	match := content[start:end]
	if secret {
		match = redact.Mask(match)
	}
	snippet := content[left:start] + match + content[end:right]
	snippet = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(snippet)
	snippet = strings.TrimSpace(redact.Text(snippet))
	if left > 0 {
		snippet = "..." + snippet
	}
	if right < len(content) {
		snippet = snippet + "..."
	}
	return snippet
}
