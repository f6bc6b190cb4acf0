// Package characters loads character cards from disk into the store.
// Cards are YAML or JSON files; the filename stem is the character's
// registry key.
package characters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"troupe/internal/database"
)

// card mirrors the on-disk character card. Persona and example dialogue
// each accept two field spellings for compatibility with existing cards.
type card struct {
	Name                string `yaml:"name" json:"name"`
	Persona             string `yaml:"persona" json:"persona"`
	Context             string `yaml:"context" json:"context"`
	ExampleDialogue     string `yaml:"example_dialogue" json:"example_dialogue"`
	ExampleConversation string `yaml:"example_conversation" json:"example_conversation"`
	Greeting            string `yaml:"greeting" json:"greeting"`
}

// LoadFile parses a single character card. The {{user}} and {{char}}
// placeholders in the example dialogue are substituted at load time.
func LoadFile(path string) (*database.Character, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character card: %w", err)
	}

	var c card
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &c)
	} else {
		err = yaml.Unmarshal(raw, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse character card %s: %w", filepath.Base(path), err)
	}

	if c.Name == "" {
		return nil, fmt.Errorf("character card %s has no name", filepath.Base(path))
	}

	persona := c.Persona
	if persona == "" {
		persona = c.Context
	}
	example := c.ExampleDialogue
	if example == "" {
		example = c.ExampleConversation
	}
	if example != "" {
		example = strings.ReplaceAll(example, "{{user}}", "You")
		example = strings.ReplaceAll(example, "{{char}}", c.Name)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &database.Character{
		Filename:        stem,
		Name:            c.Name,
		Persona:         persona,
		ExampleDialogue: example,
		Greeting:        c.Greeting,
	}, nil
}

// LoadDirectory loads every card in dir into the store, returning the
// filename stems that were registered. A card that fails to parse is
// logged and skipped; one bad file does not block the rest.
func LoadDirectory(ctx context.Context, dir string, store database.Store, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "characters")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read character directory: %w", err)
	}

	var loaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		char, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.WarnContext(ctx, "Skipping character card", "file", entry.Name(), "error", err)
			continue
		}
		if err := store.UpsertCharacter(ctx, char); err != nil {
			return nil, fmt.Errorf("failed to register character %s: %w", char.Filename, err)
		}
		log.InfoContext(ctx, "Character registered", "filename", char.Filename, "name", char.Name)
		loaded = append(loaded, char.Filename)
	}
	return loaded, nil
}
