package queue_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"troupe/internal/config"
	"troupe/internal/database"
	"troupe/internal/genbackend"
	"troupe/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore implements database.Store with overridable behavior per method.
// Unset function fields behave as empty-database no-ops.
type fakeStore struct {
	mu sync.Mutex

	characters map[string]*database.Character
	active     []database.ActiveCharacter
	turns      []database.Turn
	scenario   *string
	users      map[int64]string
	nicknames  map[int64]string

	saveTurnErr         error
	activeCharactersErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		characters: make(map[string]*database.Character),
		users:      make(map[int64]string),
		nicknames:  make(map[int64]string),
	}
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) FreeToSpeak(context.Context, int64) (bool, error) { return false, nil }

func (s *fakeStore) ToggleFreeToSpeak(context.Context, int64) (bool, error) { return true, nil }

func (s *fakeStore) GetScenario(context.Context, int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scenario == nil {
		return "", nil
	}
	return *s.scenario, nil
}

func (s *fakeStore) SetScenario(_ context.Context, _ int64, scenario *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario = scenario
	return nil
}

func (s *fakeStore) UpsertCharacter(_ context.Context, c *database.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[c.Filename] = c
	return nil
}

func (s *fakeStore) CharacterByFilename(_ context.Context, filename string) (*database.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.characters[filename], nil
}

func (s *fakeStore) ActiveCharacters(context.Context, int64) ([]database.ActiveCharacter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeCharactersErr != nil {
		return nil, s.activeCharactersErr
	}
	out := make([]database.ActiveCharacter, len(s.active))
	copy(out, s.active)
	return out, nil
}

func (s *fakeStore) CountActiveCharacters(ctx context.Context, chatID int64) (int, error) {
	active, err := s.ActiveCharacters(ctx, chatID)
	return len(active), err
}

func (s *fakeStore) SetActiveCharacter(_ context.Context, _ int64, filename string, active bool, scenario, negativePrompt *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[filename]
	if !ok {
		return database.ErrCharacterNotFound
	}
	for i := range s.active {
		if s.active[i].Filename != filename {
			continue
		}
		if !active {
			s.active = append(s.active[:i], s.active[i+1:]...)
		}
		return nil
	}
	if active {
		ac := database.ActiveCharacter{Character: *c}
		if scenario != nil {
			ac.Scenario.String, ac.Scenario.Valid = *scenario, true
		}
		if negativePrompt != nil {
			ac.NegativePrompt.String, ac.NegativePrompt.Valid = *negativePrompt, true
		}
		s.active = append(s.active, ac)
	}
	return nil
}

func (s *fakeStore) DeactivateAll(context.Context, int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	return nil
}

func (s *fakeStore) ClearActiveScenarios(context.Context, int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.active {
		s.active[i].Scenario.String, s.active[i].Scenario.Valid = "", false
	}
	return nil
}

func (s *fakeStore) UpsertUser(_ context.Context, telegramID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[telegramID] = username
	return nil
}

func (s *fakeStore) SetNickname(_ context.Context, _, telegramID int64, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nicknames[telegramID] = nickname
	return nil
}

func (s *fakeStore) DisplayName(_ context.Context, _, telegramID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nick, ok := s.nicknames[telegramID]; ok {
		return nick, nil
	}
	if name, ok := s.users[telegramID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unknown user %d", telegramID)
}

func (s *fakeStore) SaveTurn(_ context.Context, chatID int64, author, content string, tokenCount *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveTurnErr != nil {
		return s.saveTurnErr
	}
	turn := database.Turn{ID: uint(len(s.turns) + 1), RoomID: chatID, Author: author, Content: content}
	if tokenCount != nil {
		turn.TokenCount.Int64, turn.TokenCount.Valid = int64(*tokenCount), true
	}
	s.turns = append(s.turns, turn)
	return nil
}

func (s *fakeStore) RecentTurns(_ context.Context, _ int64, limit int) ([]database.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]database.Turn, len(s.turns))
	copy(out, s.turns)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) ArchiveTurns(context.Context, int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	return nil
}

func (s *fakeStore) RunMaintenance(context.Context) error { return nil }

// fakeMessenger records outbound messages.
type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	sendErr error
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, text string) (queue.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return queue.MessageRef{}, m.sendErr
	}
	m.sent = append(m.sent, text)
	return queue.MessageRef{ChatID: chatID, MessageID: len(m.sent)}, nil
}

func (m *fakeMessenger) Edit(_ context.Context, _ queue.MessageRef, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, text)
	return nil
}

func (m *fakeMessenger) Typing(context.Context, int64) {}

func (m *fakeMessenger) sentMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// fakeBackend counts tokens as whitespace-delimited words and replies with a
// fixed string per call, recording every prompt it saw.
type fakeBackend struct {
	mu          sync.Mutex
	replies     []string
	prompts     []string
	generateErr error
	countErr    error
}

func (b *fakeBackend) Generate(_ context.Context, prompt string, _ genbackend.Params) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generateErr != nil {
		return "", b.generateErr
	}
	b.prompts = append(b.prompts, prompt)
	if len(b.replies) == 0 {
		return "ok", nil
	}
	reply := b.replies[0]
	if len(b.replies) > 1 {
		b.replies = b.replies[1:]
	}
	return reply, nil
}

func (b *fakeBackend) CountTokens(_ context.Context, text string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.countErr != nil {
		return 0, b.countErr
	}
	return len(strings.Fields(text)), nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Chat.DefaultCharacter = "assistant"
	cfg.Chat.ContextLength = 2048
	cfg.Chat.MaxPendingPerAuthor = 10
	cfg.Prompt.Preamble = "This is a conversation between {{user}} and {{char}}."
	cfg.Prompt.PersonaHeading = "## Persona"
	cfg.Prompt.ScenarioHeading = "## Scenario"
	cfg.Prompt.ExampleHeading = "## Example conversation"
	cfg.Prompt.ChatHeading = "## Chat"
	cfg.Generation.MaxNewTokens = 300
	cfg.Generation.Temperature = 0.7
	cfg.Generation.TopP = 0.9
	cfg.Messages.GenerationFailed = "Could not generate a reply: {{e}}"
	cfg.Messages.ActivationFailed = "Failed to activate %s: {{e}}"
	cfg.Messages.OperationFailed = "Could not complete the command: {{e}}"
	cfg.Messages.NowActive = "%s now active in this chat."
	return cfg
}

type testEnv struct {
	env       *queue.Env
	store     *fakeStore
	messenger *fakeMessenger
	backend   *fakeBackend
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	backend := &fakeBackend{}
	return &testEnv{
		env: &queue.Env{
			Log:       discardLogger(),
			Store:     store,
			Backend:   backend,
			Cfg:       testConfig(),
			Messenger: messenger,
			Rand:      rand.New(rand.NewSource(1)),
		},
		store:     store,
		messenger: messenger,
		backend:   backend,
	}
}
