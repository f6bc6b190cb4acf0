// Package prompt assembles generation prompts from a character, a room's
// conversation history, and scenario text, packing history into a bounded
// token budget. Token costs always come from the backend tokenizer; the
// assembler never estimates counts itself.
package prompt

import (
	"context"
	"fmt"
	"strings"
)

// TokenCounter is the only backend capability the assembler needs.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// turnBoundaryStops are stop strings that mark a turn boundary for any
// character, independent of participants.
var turnBoundaryStops = []string{"\n##", "</s>", "<|", "\n\n\n", "\n#", "\nUser:", "\nYou:"}

// Config holds the prompt template pieces. The preamble may reference
// {{char}} and {{user}}; headings introduce the persona, scenario, example
// dialogue, and chat sections.
type Config struct {
	Preamble        string
	PersonaHeading  string
	ScenarioHeading string
	ExampleHeading  string
	ChatHeading     string
	AddHashes       bool
	StopStrings     []string
}

// Turn is one history entry considered for packing.
type Turn struct {
	Author  string
	Content string
}

// Input gathers everything a single assembly needs.
type Input struct {
	CharacterName     string
	Persona           string
	ExampleDialogue   string
	CharacterScenario string
	RoomScenario      string
	ActiveNames       []string
	History           []Turn
	Budget            int
	Config            Config
}

// Prompt is the assembled result: the final prompt text and the
// deduplicated stop-token set derived from configuration, participants,
// and admitted history authors.
type Prompt struct {
	Text       string
	StopTokens []string
}

// Assemble builds the prompt for one character turn.
//
// Admitted content never exceeds in.Budget: the fixed parts (preamble,
// persona, scenario/chat headings, name cue) form the baseline cost, and
// each history turn is admitted only if baseline plus its own cost still
// fits. A turn that does not fit is skipped, but newer turns are still
// considered against the same baseline, so shorter later turns may be
// admitted after a longer one was rejected.
func Assemble(ctx context.Context, counter TokenCounter, in Input) (Prompt, error) {
	if counter == nil {
		return Prompt{}, fmt.Errorf("token counter is required")
	}
	if in.CharacterName == "" {
		return Prompt{}, fmt.Errorf("character name is required")
	}

	cfg := in.Config
	prefix := ""
	if cfg.AddHashes {
		prefix = "### "
	}

	preamble := cfg.Preamble
	if preamble != "" {
		preamble = strings.ReplaceAll(preamble, "{{user}}", "You")
		preamble = strings.ReplaceAll(preamble, "{{char}}", in.CharacterName)
	}
	head := preamble + "\n" + cfg.PersonaHeading + "\n" + in.Persona

	scenario := in.RoomScenario
	if in.CharacterScenario != "" {
		scenario += "\n" + in.CharacterScenario
	}
	var closing string
	if scenario != "" {
		closing = "\n" + cfg.ScenarioHeading + "\n" + strings.TrimPrefix(scenario, "\n") + "\n" + cfg.ChatHeading
	} else {
		closing = "\n" + cfg.ChatHeading
	}

	cue := "\n" + prefix + in.CharacterName + ":"

	used, err := counter.CountTokens(ctx, head+closing+cue)
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to count baseline tokens: %w", err)
	}

	var history strings.Builder
	var admittedAuthors []string
	seenAuthor := make(map[string]bool)

	for _, turn := range in.History {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		formatted := "\n" + prefix + turn.Author + ": " + turn.Content
		cost, err := counter.CountTokens(ctx, formatted)
		if err != nil {
			return Prompt{}, fmt.Errorf("failed to count turn tokens: %w", err)
		}
		if used+cost > in.Budget {
			continue
		}
		history.WriteString(formatted)
		used += cost
		if !seenAuthor[turn.Author] {
			seenAuthor[turn.Author] = true
			admittedAuthors = append(admittedAuthors, turn.Author)
		}
	}

	middle := closing
	if in.ExampleDialogue != "" {
		example := "\n\n" + cfg.ExampleHeading + "\n" + in.ExampleDialogue + "\n"
		cost, err := counter.CountTokens(ctx, example)
		if err != nil {
			return Prompt{}, fmt.Errorf("failed to count example dialogue tokens: %w", err)
		}
		if used+cost <= in.Budget {
			middle = example + closing
			used += cost
		}
	}

	text := head + middle + history.String() + cue

	stops := make([]string, 0, len(turnBoundaryStops)+len(cfg.StopStrings)+len(in.ActiveNames)+len(admittedAuthors))
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			stops = append(stops, s)
		}
	}
	for _, s := range turnBoundaryStops {
		add(s)
	}
	for _, s := range cfg.StopStrings {
		add(s)
	}
	for _, name := range in.ActiveNames {
		add("\n" + name)
	}
	for _, author := range admittedAuthors {
		add("\n" + author)
	}

	return Prompt{Text: text, StopTokens: stops}, nil
}
