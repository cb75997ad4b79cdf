package session

import (
	"strings"
	"unicode"
)

const maxTitleRunes = 60

// DeriveTitle produces a short session title from the first user turn, by
// collapsing whitespace and truncating at a word boundary. Returns "" when
// text is empty after trimming, so callers can fall back to a default like
// "New chat".
func DeriveTitle(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	joined := strings.Join(fields, " ")
	if len([]rune(joined)) <= maxTitleRunes {
		return joined
	}
	runes := []rune(joined)[:maxTitleRunes]
	// Back off to the last whitespace so we don't cut mid-word.
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			runes = runes[:i]
			break
		}
	}
	return strings.TrimSpace(string(runes)) + "…"
}
