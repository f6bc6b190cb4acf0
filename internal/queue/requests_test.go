package queue_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"troupe/internal/database"
	"troupe/internal/queue"
)

func registerCharacter(te *testEnv, filename, name, persona, greeting string) {
	_ = te.store.UpsertCharacter(context.Background(), &database.Character{
		Filename: filename,
		Name:     name,
		Persona:  persona,
		Greeting: greeting,
	})
}

func TestActivateRequestGreeting(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	registerCharacter(te, "alice", "Alice", "A friendly assistant.", "Hi there!")

	r := queue.NewActivateRequest(1, 10, "alice", true, nil, nil)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	sent := te.messenger.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v, want exactly the greeting", sent)
	}
	if sent[0] != "Alice: Hi there!" {
		t.Errorf("greeting = %q, want %q", sent[0], "Alice: Hi there!")
	}

	if len(te.store.turns) != 1 {
		t.Fatalf("persisted %d turns, want 1", len(te.store.turns))
	}
	turn := te.store.turns[0]
	if turn.Author != "Alice" || turn.Content != "Hi there!" {
		t.Errorf("turn = %q by %q, want greeting by character name", turn.Content, turn.Author)
	}
	// Token count covers the "Alice: Hi there!" line as rendered.
	if !turn.TokenCount.Valid || turn.TokenCount.Int64 != 3 {
		t.Errorf("token count = %+v, want 3", turn.TokenCount)
	}
}

func TestActivateRequestWithoutGreetingSendsNotice(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	registerCharacter(te, "bob", "Bob", "A gruff blacksmith.", "")

	r := queue.NewActivateRequest(1, 10, "bob", true, nil, nil)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	sent := te.messenger.sentMessages()
	if len(sent) != 1 || sent[0] != "Bob now active in this chat." {
		t.Fatalf("sent = %v, want activation notice", sent)
	}
	if len(te.store.turns) != 0 {
		t.Errorf("turns = %+v, want none without a greeting", te.store.turns)
	}
}

func TestActivateRequestUnknownCharacter(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	r := queue.NewActivateRequest(1, 10, "ghost", false, nil, nil)

	err := r.Execute(context.Background(), te.env)
	var notice *queue.Notice
	if !errors.As(err, &notice) {
		t.Fatalf("Execute() error = %v, want *Notice", err)
	}
	if !errors.Is(err, database.ErrCharacterNotFound) {
		t.Errorf("error chain does not include ErrCharacterNotFound: %v", err)
	}
	if !strings.Contains(notice.Text, "ghost") {
		t.Errorf("notice %q does not name the character", notice.Text)
	}
}

func TestActivateRequestHonorsLimit(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.env.Cfg.Chat.MaxCharacters = 1
	registerCharacter(te, "alice", "Alice", "p", "")
	registerCharacter(te, "bob", "Bob", "p", "")

	if err := queue.NewActivateRequest(1, 10, "alice", false, nil, nil).Execute(context.Background(), te.env); err != nil {
		t.Fatalf("first activation failed: %v", err)
	}

	err := queue.NewActivateRequest(1, 10, "bob", false, nil, nil).Execute(context.Background(), te.env)
	var notice *queue.Notice
	if !errors.As(err, &notice) {
		t.Fatalf("second activation error = %v, want *Notice", err)
	}

	// Re-activating the already-active character is allowed at the limit.
	if err := queue.NewActivateRequest(1, 10, "alice", false, nil, nil).Execute(context.Background(), te.env); err != nil {
		t.Errorf("re-activation failed: %v", err)
	}
}

func TestChatGenerationRequest(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	registerCharacter(te, "alice", "Alice", "A friendly assistant.", "")
	_ = te.store.SetActiveCharacter(context.Background(), 1, "alice", true, nil, nil)
	te.backend.replies = []string{"  Hello, Carol!  "}

	r := queue.NewChatGenerationRequest(1, 10, "carol", "hi Alice", false)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	sent := te.messenger.sentMessages()
	if len(sent) != 1 || sent[0] != "Alice: Hello, Carol!" {
		t.Fatalf("sent = %v, want trimmed reply under the character name", sent)
	}

	if len(te.store.turns) != 2 {
		t.Fatalf("persisted %d turns, want incoming message plus reply", len(te.store.turns))
	}
	if te.store.turns[0].Author != "carol" || te.store.turns[0].Content != "hi Alice" {
		t.Errorf("incoming turn = %+v", te.store.turns[0])
	}
	if te.store.turns[1].Author != "Alice" || te.store.turns[1].Content != "Hello, Carol!" {
		t.Errorf("reply turn = %+v", te.store.turns[1])
	}

	if len(te.backend.prompts) != 1 {
		t.Fatalf("backend saw %d prompts, want 1", len(te.backend.prompts))
	}
	if !strings.HasSuffix(te.backend.prompts[0], "\nAlice:") {
		t.Errorf("prompt does not end with the speaker cue: %q", te.backend.prompts[0])
	}
}

func TestChatGenerationRequestUsesNickname(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	registerCharacter(te, "alice", "Alice", "p", "")
	_ = te.store.SetActiveCharacter(context.Background(), 1, "alice", true, nil, nil)
	_ = te.store.SetNickname(context.Background(), 1, 10, "Sir Carol")

	r := queue.NewChatGenerationRequest(1, 10, "carol", "hello", false)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if te.store.turns[0].Author != "Sir Carol" {
		t.Errorf("incoming author = %q, want nickname", te.store.turns[0].Author)
	}
}

func TestChatGenerationRequestActivatesDefault(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	registerCharacter(te, "assistant", "Assistant", "Helpful.", "")

	r := queue.NewChatGenerationRequest(1, 10, "carol", "hello", false)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	sent := te.messenger.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("sent = %v, want activation notice plus reply", sent)
	}
	if sent[0] != "assistant now active in this chat." {
		t.Errorf("notice = %q", sent[0])
	}
	if !strings.HasPrefix(sent[1], "Assistant: ") {
		t.Errorf("reply = %q, want Assistant prefix", sent[1])
	}
}

func TestChatGenerationRequestContinuationSavesNothingIncoming(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	registerCharacter(te, "alice", "Alice", "p", "")
	_ = te.store.SetActiveCharacter(context.Background(), 1, "alice", true, nil, nil)

	r := queue.NewChatGenerationRequest(1, 10, "carol", "", true)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(te.store.turns) != 1 || te.store.turns[0].Author != "Alice" {
		t.Errorf("turns = %+v, want only the generated reply", te.store.turns)
	}
}

func TestChatGenerationRequestGenerationFailureNotice(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	registerCharacter(te, "alice", "Alice", "p", "")
	_ = te.store.SetActiveCharacter(context.Background(), 1, "alice", true, nil, nil)
	te.backend.generateErr = errors.New("backend offline")

	err := queue.NewChatGenerationRequest(1, 10, "carol", "hello", false).Execute(context.Background(), te.env)
	var notice *queue.Notice
	if !errors.As(err, &notice) {
		t.Fatalf("Execute() error = %v, want *Notice", err)
	}
	if notice.Text != "Could not generate a reply: backend offline" {
		t.Errorf("notice = %q, want substituted error text", notice.Text)
	}
}

func TestGenericDatabaseRequest(t *testing.T) {
	t.Parallel()

	t.Run("success sends confirmation", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv()
		scenario := "a tavern"
		r := queue.NewGenericDatabaseRequest(1, 10, func(ctx context.Context, store database.Store) error {
			return store.SetScenario(ctx, 1, &scenario)
		}, "Chat scenario updated.", "Could not complete the command: {{e}}")

		if err := r.Execute(context.Background(), te.env); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if got, _ := te.store.GetScenario(context.Background(), 1); got != "a tavern" {
			t.Errorf("scenario = %q", got)
		}
		if sent := te.messenger.sentMessages(); len(sent) != 1 || sent[0] != "Chat scenario updated." {
			t.Errorf("sent = %v", sent)
		}
	})

	t.Run("failure becomes a notice", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv()
		r := queue.NewGenericDatabaseRequest(1, 10, func(context.Context, database.Store) error {
			return errors.New("disk full")
		}, "ok", "Could not complete the command: {{e}}")

		err := r.Execute(context.Background(), te.env)
		var notice *queue.Notice
		if !errors.As(err, &notice) {
			t.Fatalf("Execute() error = %v, want *Notice", err)
		}
		if notice.Text != "Could not complete the command: disk full" {
			t.Errorf("notice = %q", notice.Text)
		}
	})
}

func TestClearRequest(t *testing.T) {
	t.Parallel()

	t.Run("nothing selected is a construction error", func(t *testing.T) {
		t.Parallel()
		if _, err := queue.NewClearRequest(1, 10, false, false, false, false); !errors.Is(err, queue.ErrNothingToClear) {
			t.Fatalf("NewClearRequest() error = %v, want ErrNothingToClear", err)
		}
	})

	t.Run("clears selected state and reports it", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv()
		registerCharacter(te, "alice", "Alice", "p", "")
		_ = te.store.SetActiveCharacter(context.Background(), 1, "alice", true, nil, nil)
		scenario := "a tavern"
		_ = te.store.SetScenario(context.Background(), 1, &scenario)
		_ = te.store.SaveTurn(context.Background(), 1, "carol", "hello", nil)

		r, err := queue.NewClearRequest(1, 10, true, true, true, true)
		if err != nil {
			t.Fatalf("NewClearRequest() error = %v", err)
		}
		if err := r.Execute(context.Background(), te.env); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		if len(te.store.turns) != 0 {
			t.Errorf("history not cleared: %+v", te.store.turns)
		}
		if len(te.store.active) != 0 {
			t.Errorf("characters not deactivated")
		}
		if got, _ := te.store.GetScenario(context.Background(), 1); got != "" {
			t.Errorf("scenario not cleared: %q", got)
		}

		sent := te.messenger.sentMessages()
		if len(sent) != 1 || !strings.HasPrefix(sent[0], "Reset the following:") {
			t.Fatalf("sent = %v", sent)
		}
		if strings.Count(sent[0], "•") != 3 {
			t.Errorf("summary = %q, want three items (deactivation covers character scenarios)", sent[0])
		}
	})
}

func TestSaveAndSendMessageRequest(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	r := queue.NewSaveAndSendMessageRequest(1, 10, "Alice", "Hi there!", true)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if sent := te.messenger.sentMessages(); len(sent) != 1 || sent[0] != "Alice: Hi there!" {
		t.Fatalf("sent = %v", sent)
	}
	if len(te.store.turns) != 1 || te.store.turns[0].Author != "Alice" || te.store.turns[0].Content != "Hi there!" {
		t.Errorf("turns = %+v", te.store.turns)
	}
}

func TestGenericGenerationRequest(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.backend.replies = []string{"and so it goes."}

	r := queue.NewGenericGenerationRequest(1, 10, `Once upon a time\nthere was`)
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(te.backend.prompts) != 1 || te.backend.prompts[0] != "Once upon a time\nthere was" {
		t.Errorf("prompt = %q, want literal newline unescaped", te.backend.prompts)
	}
	sent := te.messenger.sentMessages()
	if len(sent) != 1 || sent[0] != "Once upon a time\nthere was and so it goes." {
		t.Errorf("sent = %v", sent)
	}
	// Raw generations are never persisted.
	if len(te.store.turns) != 0 {
		t.Errorf("turns = %+v, want none", te.store.turns)
	}
}

func TestGenericGenerationEditRequest(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.backend.replies = []string{"the rest."}

	target := queue.MessageRef{ChatID: 1, MessageID: 42}
	r := queue.NewGenericGenerationEditRequest(1, 10, "Start of", target, "Start of ")
	if err := r.Execute(context.Background(), te.env); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(te.messenger.sentMessages()) != 0 {
		t.Errorf("sent = %v, want edit only", te.messenger.sentMessages())
	}
	if len(te.messenger.edits) != 1 || te.messenger.edits[0] != "Start of the rest." {
		t.Errorf("edits = %v", te.messenger.edits)
	}
}
