package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"troupe/internal/config"
	"troupe/internal/database"
	"troupe/internal/genbackend"
	"troupe/internal/prompt"
	"troupe/internal/roster"
)

// ErrNothingToClear is returned when a ClearRequest is constructed with no
// flags set; doing nothing is an error, not a no-op.
var ErrNothingToClear = errors.New("clear request without anything to clear")

// ChatGenerationRequest asks the active characters of a room to respond to
// an incoming message, or to speak again when Continuation is set.
type ChatGenerationRequest struct {
	base
	AuthorName   string
	Message      string
	Continuation bool
}

// NewChatGenerationRequest builds a chat-turn request. Message may be empty
// for pure continuations.
func NewChatGenerationRequest(chatID, authorID int64, authorName, message string, continuation bool) *ChatGenerationRequest {
	return &ChatGenerationRequest{
		base:         base{chatID: chatID, authorID: authorID},
		AuthorName:   authorName,
		Message:      message,
		Continuation: continuation,
	}
}

func (r *ChatGenerationRequest) Execute(ctx context.Context, env *Env) error {
	cfg := env.Cfg

	if !r.Continuation && strings.TrimSpace(r.Message) != "" {
		if err := r.saveIncoming(ctx, env); err != nil {
			return err
		}
	}

	active, err := env.Store.ActiveCharacters(ctx, r.chatID)
	if err != nil {
		return fmt.Errorf("failed to load active characters: %w", err)
	}

	if len(active) == 0 {
		if err := env.Store.SetActiveCharacter(ctx, r.chatID, cfg.Chat.DefaultCharacter, true, nil, nil); err != nil {
			return failNotice(fmt.Sprintf(cfg.Messages.ActivationFailed, cfg.Chat.DefaultCharacter), err)
		}
		if _, err := env.Messenger.Send(ctx, r.chatID, fmt.Sprintf(cfg.Messages.NowActive, cfg.Chat.DefaultCharacter)); err != nil {
			env.Log.WarnContext(ctx, "Failed to send default activation notice", "chat_id", r.chatID, "error", err)
		}
		if active, err = env.Store.ActiveCharacters(ctx, r.chatID); err != nil {
			return fmt.Errorf("failed to reload active characters: %w", err)
		}
	}

	order := roster.SpeakingOrder(active, r.Message, r.Continuation, env.Rand)

	activeNames := make([]string, 0, len(active))
	for _, c := range active {
		activeNames = append(activeNames, c.Name)
	}

	roomScenario, err := env.Store.GetScenario(ctx, r.chatID)
	if err != nil {
		return fmt.Errorf("failed to load room scenario: %w", err)
	}

	for _, speaker := range order {
		if err := r.speak(ctx, env, speaker, roomScenario, activeNames); err != nil {
			// Abort the remaining speaker turns for this request; the
			// dispatcher keeps running.
			return err
		}
	}
	return nil
}

// saveIncoming registers the author and persists the incoming message under
// the author's per-room display name.
func (r *ChatGenerationRequest) saveIncoming(ctx context.Context, env *Env) error {
	if err := env.Store.UpsertUser(ctx, r.authorID, r.AuthorName); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	name, err := env.Store.DisplayName(ctx, r.chatID, r.authorID)
	if err != nil {
		return fmt.Errorf("failed to resolve display name: %w", err)
	}
	return saveCountedTurn(ctx, env, r.chatID, name, r.Message)
}

// speak runs one character's turn: assemble, generate, persist, send.
// History is re-fetched per speaker so each prompt sees the previous
// speaker's freshly persisted reply.
func (r *ChatGenerationRequest) speak(ctx context.Context, env *Env, speaker database.ActiveCharacter, roomScenario string, activeNames []string) error {
	cfg := env.Cfg
	env.Messenger.Typing(ctx, r.chatID)

	turns, err := env.Store.RecentTurns(ctx, r.chatID, 200)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]prompt.Turn, 0, len(turns))
	for _, t := range turns {
		history = append(history, prompt.Turn{Author: t.Author, Content: t.Content})
	}

	assembled, err := prompt.Assemble(ctx, env.Backend, prompt.Input{
		CharacterName:     speaker.Name,
		Persona:           speaker.Persona,
		ExampleDialogue:   speaker.ExampleDialogue,
		CharacterScenario: speaker.Scenario.String,
		RoomScenario:      roomScenario,
		ActiveNames:       activeNames,
		History:           history,
		Budget:            cfg.Chat.ContextLength,
		Config: prompt.Config{
			Preamble:        cfg.Prompt.Preamble,
			PersonaHeading:  cfg.Prompt.PersonaHeading,
			ScenarioHeading: cfg.Prompt.ScenarioHeading,
			ExampleHeading:  cfg.Prompt.ExampleHeading,
			ChatHeading:     cfg.Prompt.ChatHeading,
			AddHashes:       cfg.Chat.AddHashes,
			StopStrings:     cfg.Generation.StopStrings,
		},
	})
	if err != nil {
		return failNotice(cfg.Messages.GenerationFailed, err)
	}

	params := generationParams(cfg)
	params.NegativePrompt = speaker.NegativePrompt.String + cfg.Generation.NegativePrompt
	params.StopStrings = assembled.StopTokens

	reply, err := env.Backend.Generate(ctx, assembled.Text, params)
	if err != nil {
		return failNotice(cfg.Messages.GenerationFailed, err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		env.Log.InfoContext(ctx, "Empty reply generated, skipping send",
			"chat_id", r.chatID, "character", speaker.Name)
		return nil
	}

	env.Log.InfoContext(ctx, "Reply generated", "chat_id", r.chatID, "character", speaker.Name)
	if _, err := env.Messenger.Send(ctx, r.chatID, speaker.Name+": "+reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return saveCountedTurn(ctx, env, r.chatID, speaker.Name, reply)
}

// ActivateRequest activates a character in a room, optionally greeting.
type ActivateRequest struct {
	base
	Filename       string
	Greeting       bool
	Scenario       *string
	NegativePrompt *string
}

// NewActivateRequest builds an activation request for a character filename.
func NewActivateRequest(chatID, authorID int64, filename string, greeting bool, scenario, negativePrompt *string) *ActivateRequest {
	return &ActivateRequest{
		base:           base{chatID: chatID, authorID: authorID},
		Filename:       filename,
		Greeting:       greeting,
		Scenario:       scenario,
		NegativePrompt: negativePrompt,
	}
}

func (r *ActivateRequest) Execute(ctx context.Context, env *Env) error {
	cfg := env.Cfg

	if cfg.Chat.MaxCharacters > 0 {
		count, err := env.Store.CountActiveCharacters(ctx, r.chatID)
		if err != nil {
			return failNotice(fmt.Sprintf(cfg.Messages.ActivationFailed, r.Filename), err)
		}
		// The full fetch is only needed at the limit, to exempt a character
		// that is already active (re-activation updates its overrides).
		if count >= cfg.Chat.MaxCharacters {
			active, err := env.Store.ActiveCharacters(ctx, r.chatID)
			if err != nil {
				return failNotice(fmt.Sprintf(cfg.Messages.ActivationFailed, r.Filename), err)
			}
			alreadyActive := false
			for _, c := range active {
				if c.Filename == r.Filename {
					alreadyActive = true
					break
				}
			}
			if !alreadyActive {
				err := fmt.Errorf("cannot exceed the limit of %d active characters per chat", cfg.Chat.MaxCharacters)
				return failNotice(fmt.Sprintf(cfg.Messages.ActivationFailed, r.Filename), err)
			}
		}
	}

	if err := env.Store.SetActiveCharacter(ctx, r.chatID, r.Filename, true, r.Scenario, r.NegativePrompt); err != nil {
		return failNotice(fmt.Sprintf(cfg.Messages.ActivationFailed, r.Filename), err)
	}

	char, err := env.Store.CharacterByFilename(ctx, r.Filename)
	if err != nil || char == nil {
		if err == nil {
			err = database.ErrCharacterNotFound
		}
		return failNotice(fmt.Sprintf(cfg.Messages.ActivationFailed, r.Filename), err)
	}

	env.Log.InfoContext(ctx, "Character activated", "chat_id", r.chatID, "filename", r.Filename)

	// The greeting doubles as the activation confirmation; a bare notice
	// goes out only when there is no greeting to send.
	if r.Greeting && char.Greeting != "" {
		if _, err := env.Messenger.Send(ctx, r.chatID, char.Name+": "+char.Greeting); err != nil {
			return fmt.Errorf("failed to send greeting: %w", err)
		}
		return saveCountedTurn(ctx, env, r.chatID, char.Name, char.Greeting)
	}

	notice := fmt.Sprintf(cfg.Messages.NowActive, char.Name)
	if r.Scenario != nil && *r.Scenario != "" {
		notice += "\nScenario for this character set: " + *r.Scenario
	}
	if _, err := env.Messenger.Send(ctx, r.chatID, notice); err != nil {
		return fmt.Errorf("failed to send activation notice: %w", err)
	}
	return nil
}

// Mutation is a named store mutation carried by a GenericDatabaseRequest.
type Mutation func(ctx context.Context, store database.Store) error

// GenericDatabaseRequest invokes a named store mutation and reports the
// outcome with the given notice templates. The failure template may
// reference {{e}} for the error text. Used for deactivation, scenario
// edits, nickname changes, and the free-to-speak toggle.
type GenericDatabaseRequest struct {
	base
	Mutate          Mutation
	SuccessText     string
	FailureTemplate string
}

// NewGenericDatabaseRequest builds a generic store-mutation request.
func NewGenericDatabaseRequest(chatID, authorID int64, mutate Mutation, successText, failureTemplate string) *GenericDatabaseRequest {
	return &GenericDatabaseRequest{
		base:            base{chatID: chatID, authorID: authorID},
		Mutate:          mutate,
		SuccessText:     successText,
		FailureTemplate: failureTemplate,
	}
}

func (r *GenericDatabaseRequest) Execute(ctx context.Context, env *Env) error {
	if r.Mutate == nil {
		return fmt.Errorf("generic database request without a mutation")
	}
	if err := r.Mutate(ctx, env.Store); err != nil {
		return failNotice(r.FailureTemplate, err)
	}
	if r.SuccessText != "" {
		if _, err := env.Messenger.Send(ctx, r.chatID, r.SuccessText); err != nil {
			return fmt.Errorf("failed to send success notice: %w", err)
		}
	}
	return nil
}

// ClearRequest resets a selected subset of a room's state.
type ClearRequest struct {
	base
	history            bool
	activeCharacters   bool
	roomScenario       bool
	characterScenarios bool
}

// NewClearRequest builds a clear request. It fails with ErrNothingToClear
// when every flag is false.
func NewClearRequest(chatID, authorID int64, history, activeCharacters, roomScenario, characterScenarios bool) (*ClearRequest, error) {
	if !history && !activeCharacters && !roomScenario && !characterScenarios {
		return nil, ErrNothingToClear
	}
	return &ClearRequest{
		base:               base{chatID: chatID, authorID: authorID},
		history:            history,
		activeCharacters:   activeCharacters,
		roomScenario:       roomScenario,
		characterScenarios: characterScenarios,
	}, nil
}

func (r *ClearRequest) Execute(ctx context.Context, env *Env) error {
	var reset []string

	if r.history {
		if err := env.Store.ArchiveTurns(ctx, r.chatID); err != nil {
			return failNotice(env.Cfg.Messages.OperationFailed, err)
		}
		reset = append(reset, "Conversation history for this chat cleared")
	}

	if r.activeCharacters {
		if err := env.Store.DeactivateAll(ctx, r.chatID); err != nil {
			return failNotice(env.Cfg.Messages.OperationFailed, err)
		}
		reset = append(reset, "All characters in this chat deactivated")
	}

	if r.roomScenario {
		if err := env.Store.SetScenario(ctx, r.chatID, nil); err != nil {
			return failNotice(env.Cfg.Messages.OperationFailed, err)
		}
		reset = append(reset, "Chat scenario cleared")
	}

	// Deactivation already nulls per-character scenarios.
	if r.characterScenarios && !r.activeCharacters {
		if err := env.Store.ClearActiveScenarios(ctx, r.chatID); err != nil {
			return failNotice(env.Cfg.Messages.OperationFailed, err)
		}
		reset = append(reset, "All character scenarios for this chat cleared")
	}

	if _, err := env.Messenger.Send(ctx, r.chatID, "Reset the following:\n• "+strings.Join(reset, "\n• ")); err != nil {
		return fmt.Errorf("failed to send clear notice: %w", err)
	}
	return nil
}

// SaveAndSendMessageRequest sends and persists an arbitrary message (for
// example a re-sent greeting) without invoking generation.
type SaveAndSendMessageRequest struct {
	base
	MessageAuthor string
	Text          string
	DisplayAuthor bool
}

// NewSaveAndSendMessageRequest builds a save-and-send request.
func NewSaveAndSendMessageRequest(chatID, authorID int64, messageAuthor, text string, displayAuthor bool) *SaveAndSendMessageRequest {
	return &SaveAndSendMessageRequest{
		base:          base{chatID: chatID, authorID: authorID},
		MessageAuthor: messageAuthor,
		Text:          text,
		DisplayAuthor: displayAuthor,
	}
}

func (r *SaveAndSendMessageRequest) Execute(ctx context.Context, env *Env) error {
	env.Messenger.Typing(ctx, r.chatID)

	out := r.Text
	if r.DisplayAuthor {
		out = r.MessageAuthor + ": " + r.Text
	}
	if _, err := env.Messenger.Send(ctx, r.chatID, out); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return saveCountedTurn(ctx, env, r.chatID, r.MessageAuthor, r.Text)
}

// GenericGenerationRequest calls the backend with a raw prompt, with no
// character or history context, and either sends the result or appends it
// to a previously sent message. The result is not persisted.
type GenericGenerationRequest struct {
	base
	Prompt       string
	SendResult   bool
	EditTarget   *MessageRef
	EditBaseText string
}

// NewGenericGenerationRequest builds a raw generation request that sends
// its result as a new message.
func NewGenericGenerationRequest(chatID, authorID int64, promptText string) *GenericGenerationRequest {
	return &GenericGenerationRequest{
		base:       base{chatID: chatID, authorID: authorID},
		Prompt:     promptText,
		SendResult: true,
	}
}

// NewGenericGenerationEditRequest builds a raw generation request that
// appends its result to an existing message.
func NewGenericGenerationEditRequest(chatID, authorID int64, promptText string, target MessageRef, baseText string) *GenericGenerationRequest {
	return &GenericGenerationRequest{
		base:         base{chatID: chatID, authorID: authorID},
		Prompt:       promptText,
		EditTarget:   &target,
		EditBaseText: baseText,
	}
}

func (r *GenericGenerationRequest) Execute(ctx context.Context, env *Env) error {
	cfg := env.Cfg
	promptText := strings.ReplaceAll(r.Prompt, `\n`, "\n")

	params := generationParams(cfg)
	params.AutoMaxNewTokens = true
	params.NegativePrompt = cfg.Generation.NegativePrompt
	params.StopStrings = cfg.Generation.StopStrings

	reply, err := env.Backend.Generate(ctx, promptText, params)
	if err != nil {
		return failNotice(cfg.Messages.GenerationFailed, err)
	}

	switch {
	case r.SendResult:
		if _, err := env.Messenger.Send(ctx, r.chatID, promptText+" "+reply); err != nil {
			return fmt.Errorf("failed to send generation result: %w", err)
		}
	case r.EditTarget != nil:
		if err := env.Messenger.Edit(ctx, *r.EditTarget, r.EditBaseText+reply); err != nil {
			return fmt.Errorf("failed to edit message with generation result: %w", err)
		}
	}
	return nil
}

// saveCountedTurn persists a turn with its backend-computed token count,
// falling back to an uncounted turn when the tokenizer is unavailable.
func saveCountedTurn(ctx context.Context, env *Env, chatID int64, author, content string) error {
	var tokenCount *int
	if count, err := env.Backend.CountTokens(ctx, author+": "+content); err != nil {
		env.Log.WarnContext(ctx, "Token count failed, saving turn uncounted",
			"chat_id", chatID, "author", author, "error", err)
	} else {
		tokenCount = &count
	}
	if err := env.Store.SaveTurn(ctx, chatID, author, content, tokenCount); err != nil {
		return fmt.Errorf("failed to persist turn: %w", err)
	}
	return nil
}

// generationParams builds the configured baseline sampling parameters;
// callers fill in per-request negative prompts and stop strings.
func generationParams(cfg *config.Config) genbackend.Params {
	return genbackend.Params{
		MaxNewTokens: cfg.Generation.MaxNewTokens,
		Temperature:  cfg.Generation.Temperature,
		TopP:         cfg.Generation.TopP,
	}
}
