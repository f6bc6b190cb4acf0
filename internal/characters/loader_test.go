package characters_test

import (
	"os"
	"path/filepath"
	"testing"

	"troupe/internal/characters"
)

func writeCard(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write card: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	t.Run("yaml card with placeholder substitution", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := writeCard(t, dir, "alice.yaml", `
name: Alice
persona: A friendly assistant.
example_dialogue: |-
  {{user}}: hey
  {{char}}: hey yourself
greeting: Hi there!
`)

		char, err := characters.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if char.Filename != "alice" {
			t.Errorf("Filename = %q, want stem", char.Filename)
		}
		if char.Name != "Alice" || char.Greeting != "Hi there!" {
			t.Errorf("char = %+v", char)
		}
		if char.ExampleDialogue != "You: hey\nAlice: hey yourself" {
			t.Errorf("ExampleDialogue = %q", char.ExampleDialogue)
		}
	})

	t.Run("json card with alternate field names", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := writeCard(t, dir, "bob.json", `{
  "name": "Bob",
  "context": "A gruff blacksmith.",
  "example_conversation": "{{char}}: what do you want"
}`)

		char, err := characters.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if char.Persona != "A gruff blacksmith." {
			t.Errorf("Persona = %q, want context field fallback", char.Persona)
		}
		if char.ExampleDialogue != "Bob: what do you want" {
			t.Errorf("ExampleDialogue = %q", char.ExampleDialogue)
		}
	})

	t.Run("card without a name fails", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := writeCard(t, dir, "broken.yaml", "persona: nameless")

		if _, err := characters.LoadFile(path); err == nil {
			t.Error("LoadFile() succeeded for a nameless card")
		}
	})
}
