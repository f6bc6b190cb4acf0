package telegram_test

import (
	"strings"
	"testing"

	"troupe/internal/telegram"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	t.Run("short text is untouched", func(t *testing.T) {
		t.Parallel()
		parts := telegram.SplitMessage("hello", 100)
		if len(parts) != 1 || parts[0] != "hello" {
			t.Fatalf("parts = %q", parts)
		}
	})

	t.Run("splits at line boundaries", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("a line of text\n", 30)
		parts := telegram.SplitMessage(text, 100)
		if len(parts) < 2 {
			t.Fatalf("expected multiple parts, got %d", len(parts))
		}
		for i, p := range parts {
			if len(p) > 100 {
				t.Errorf("part %d is %d bytes, limit 100", i, len(p))
			}
			if strings.HasPrefix(p, "\n") {
				t.Errorf("part %d starts with a newline: %q", i, p)
			}
		}
		joined := strings.Join(parts, "\n")
		if joined != text {
			t.Errorf("content lost across split:\n%q\n%q", text, joined)
		}
	})

	t.Run("keeps code fences balanced", func(t *testing.T) {
		t.Parallel()
		text := "intro\n```\n" + strings.Repeat("code line\n", 20) + "```\ntail"
		parts := telegram.SplitMessage(text, 80)
		if len(parts) < 2 {
			t.Fatalf("expected multiple parts, got %d", len(parts))
		}
		for i, p := range parts {
			if len(p) > 80 {
				t.Errorf("part %d is %d bytes, limit 80", i, len(p))
			}
			if strings.Count(p, "```")%2 != 0 {
				t.Errorf("part %d has unbalanced fences: %q", i, p)
			}
		}
	})

	t.Run("hard cut falls back to rune boundaries", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("é", 200)
		parts := telegram.SplitMessage(text, 101)
		for i, p := range parts {
			if !strings.HasPrefix(strings.Repeat("é", 200), p) && !strings.Contains(text, p) {
				t.Errorf("part %d cut mid-rune: %q", i, p)
			}
			if len(p) > 101 {
				t.Errorf("part %d is %d bytes, limit 101", i, len(p))
			}
		}
		if strings.Join(parts, "") != text {
			t.Error("content lost across hard cut")
		}
	})
}
