package telegram

import (
	"strings"
	"unicode/utf8"
)

// messageLimit is the Telegram per-message text limit.
const messageLimit = 4096

// fence is the Markdown code-fence marker that must stay balanced within
// each emitted part.
const fence = "```"

// SplitMessage splits text into parts no longer than limit bytes, cutting
// at line boundaries where possible. An open code fence at a cut point is
// closed at the end of the part and reopened at the start of the next one,
// so every part renders with balanced fences.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = messageLimit
	}
	if len(text) <= limit {
		return []string{text}
	}

	// Room for a trailing "\n```" when a fence has to be closed.
	budget := limit - len(fence) - 1

	var parts []string
	for len(text) > limit {
		cut := splitPoint(text, budget)
		chunk := text[:cut]
		rest := strings.TrimPrefix(text[cut:], "\n")

		if strings.Count(chunk, fence)%2 == 1 {
			chunk += "\n" + fence
			rest = fence + "\n" + rest
		}

		parts = append(parts, chunk)
		text = rest
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// splitPoint picks a cut index at or below max, preferring the last newline,
// then the last space, then a rune boundary.
func splitPoint(text string, max int) int {
	if max >= len(text) {
		return len(text)
	}
	window := text[:max]
	if i := strings.LastIndexByte(window, '\n'); i > 0 {
		return i
	}
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		return i
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
