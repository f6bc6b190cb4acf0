package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrCharacterNotFound is returned when an operation references a character
// filename that has not been registered.
var ErrCharacterNotFound = errors.New("character not found")

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts. Rooms are
// addressed by chat ID; the store creates room rows on demand.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Rooms
	FreeToSpeak(ctx context.Context, chatID int64) (bool, error)
	ToggleFreeToSpeak(ctx context.Context, chatID int64) (bool, error)
	GetScenario(ctx context.Context, chatID int64) (string, error)
	SetScenario(ctx context.Context, chatID int64, scenario *string) error

	// Characters
	UpsertCharacter(ctx context.Context, c *Character) error
	CharacterByFilename(ctx context.Context, filename string) (*Character, error)
	ActiveCharacters(ctx context.Context, chatID int64) ([]ActiveCharacter, error)
	CountActiveCharacters(ctx context.Context, chatID int64) (int, error)
	SetActiveCharacter(ctx context.Context, chatID int64, filename string, active bool, scenario, negativePrompt *string) error
	DeactivateAll(ctx context.Context, chatID int64) error
	ClearActiveScenarios(ctx context.Context, chatID int64) error

	// Users and nicknames
	UpsertUser(ctx context.Context, telegramID int64, username string) error
	SetNickname(ctx context.Context, chatID, telegramID int64, nickname string) error
	DisplayName(ctx context.Context, chatID, telegramID int64) (string, error)

	// Conversation history
	SaveTurn(ctx context.Context, chatID int64, author, content string, tokenCount *int) error
	RecentTurns(ctx context.Context, chatID int64, limit int) ([]Turn, error)
	ArchiveTurns(ctx context.Context, chatID int64) error

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ensureRoom returns the room row ID for a chat, creating the row if needed.
// It runs on the provided execer so callers can use it inside a transaction.
func ensureRoom(ctx context.Context, e sqlx.ExtContext, chatID int64) (int64, error) {
	if chatID == 0 {
		return 0, fmt.Errorf("chat_id cannot be zero")
	}

	_, err := e.ExecContext(ctx,
		`INSERT INTO rooms (chat_id) VALUES (?) ON CONFLICT (chat_id) DO NOTHING`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to register room for chat %d: %w", chatID, err)
	}

	var roomID int64
	if err := sqlx.GetContext(ctx, e, &roomID, `SELECT id FROM rooms WHERE chat_id = ?`, chatID); err != nil {
		return 0, fmt.Errorf("failed to look up room for chat %d: %w", chatID, err)
	}
	return roomID, nil
}

func (s *sqlxStore) FreeToSpeak(ctx context.Context, chatID int64) (bool, error) {
	var free bool
	err := s.db.GetContext(ctx, &free, `SELECT free_to_speak FROM rooms WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get free_to_speak for chat %d: %w", chatID, err)
	}
	return free, nil
}

// ToggleFreeToSpeak flips the room's free-to-speak flag and returns the new value.
func (s *sqlxStore) ToggleFreeToSpeak(ctx context.Context, chatID int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackIfOpen(ctx, s.logger, &tx)

	roomID, err := ensureRoom(ctx, tx, chatID)
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET free_to_speak = 1 - free_to_speak, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), roomID); err != nil {
		return false, fmt.Errorf("failed to toggle free_to_speak for chat %d: %w", chatID, err)
	}

	var free bool
	if err := tx.GetContext(ctx, &free, `SELECT free_to_speak FROM rooms WHERE id = ?`, roomID); err != nil {
		return false, fmt.Errorf("failed to read free_to_speak for chat %d: %w", chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Toggled free_to_speak", "chat_id", chatID, "free_to_speak", free)
	return free, nil
}

func (s *sqlxStore) GetScenario(ctx context.Context, chatID int64) (string, error) {
	var scenario sql.NullString
	err := s.db.GetContext(ctx, &scenario, `SELECT scenario FROM rooms WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get scenario for chat %d: %w", chatID, err)
	}
	return scenario.String, nil
}

// SetScenario sets or clears (nil) the room scenario text.
func (s *sqlxStore) SetScenario(ctx context.Context, chatID int64, scenario *string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackIfOpen(ctx, s.logger, &tx)

	roomID, err := ensureRoom(ctx, tx, chatID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET scenario = ?, updated_at = ? WHERE id = ?`,
		scenario, time.Now().UTC(), roomID); err != nil {
		return fmt.Errorf("failed to set scenario for chat %d: %w", chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Room scenario updated", "chat_id", chatID, "cleared", scenario == nil)
	return nil
}

// UpsertCharacter inserts or updates a character keyed by filename.
func (s *sqlxStore) UpsertCharacter(ctx context.Context, c *Character) error {
	if c == nil {
		return fmt.Errorf("cannot save nil character")
	}
	if c.Filename == "" || c.Name == "" {
		return fmt.Errorf("character must have a filename and a name")
	}

	now := time.Now().UTC()
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}

	query := `
        INSERT INTO characters (filename, name, persona, example_dialogue, greeting, created_at, updated_at)
        VALUES (:filename, :name, :persona, :example_dialogue, :greeting, :created_at, :updated_at)
        ON CONFLICT (filename) DO UPDATE SET
            name = excluded.name,
            persona = excluded.persona,
            example_dialogue = excluded.example_dialogue,
            greeting = excluded.greeting,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, c); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting character", "filename", c.Filename, "error", err)
		return fmt.Errorf("failed to upsert character %q: %w", c.Filename, err)
	}

	s.logger.DebugContext(ctx, "Character upserted", "filename", c.Filename, "name", c.Name)
	return nil
}

// CharacterByFilename returns the character with the given filename stem,
// or nil, nil when no such character exists.
func (s *sqlxStore) CharacterByFilename(ctx context.Context, filename string) (*Character, error) {
	var c Character
	query := `SELECT id, created_at, updated_at, filename, name, persona, example_dialogue, greeting
	          FROM characters WHERE filename = ?`

	err := s.db.GetContext(ctx, &c, query, filename)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get character %q: %w", filename, err)
	}
	return &c, nil
}

const activeCharacterColumns = `
    c.id, c.created_at, c.updated_at, c.filename, c.name, c.persona, c.example_dialogue, c.greeting,
    rc.scenario AS room_scenario, rc.negative_prompt AS room_negative_prompt`

// ActiveCharacters returns the characters currently active in a chat, with
// their per-room scenario and negative-prompt overrides, in row order.
func (s *sqlxStore) ActiveCharacters(ctx context.Context, chatID int64) ([]ActiveCharacter, error) {
	var chars []ActiveCharacter
	query := `SELECT ` + activeCharacterColumns + `
	          FROM characters c
	          INNER JOIN room_characters rc ON rc.character_id = c.id
	          INNER JOIN rooms r ON r.id = rc.room_id
	          WHERE r.chat_id = ? AND rc.active = 1
	          ORDER BY rc.id ASC`

	if err := s.db.SelectContext(ctx, &chars, query, chatID); err != nil {
		return nil, fmt.Errorf("failed to get active characters for chat %d: %w", chatID, err)
	}
	return chars, nil
}

func (s *sqlxStore) CountActiveCharacters(ctx context.Context, chatID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*)
	          FROM room_characters rc
	          INNER JOIN rooms r ON r.id = rc.room_id
	          WHERE r.chat_id = ? AND rc.active = 1`

	if err := s.db.GetContext(ctx, &count, query, chatID); err != nil {
		return 0, fmt.Errorf("failed to count active characters for chat %d: %w", chatID, err)
	}
	return count, nil
}

// SetActiveCharacter idempotently upserts the (room, character) overlay row.
// It returns ErrCharacterNotFound when the filename is unknown.
func (s *sqlxStore) SetActiveCharacter(ctx context.Context, chatID int64, filename string, active bool, scenario, negativePrompt *string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackIfOpen(ctx, s.logger, &tx)

	var charID uint
	err = tx.GetContext(ctx, &charID, `SELECT id FROM characters WHERE filename = ?`, filename)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrCharacterNotFound, filename)
	}
	if err != nil {
		return fmt.Errorf("failed to look up character %q: %w", filename, err)
	}

	roomID, err := ensureRoom(ctx, tx, chatID)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO room_characters (room_id, character_id, active, scenario, negative_prompt, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (room_id, character_id) DO UPDATE SET
            active = excluded.active,
            scenario = excluded.scenario,
            negative_prompt = excluded.negative_prompt,
            updated_at = excluded.updated_at;
    `
	if _, err := tx.ExecContext(ctx, query, roomID, charID, active, scenario, negativePrompt, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set activation for character %q in chat %d: %w", filename, chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Character activation updated",
		"chat_id", chatID, "filename", filename, "active", active)
	return nil
}

// DeactivateAll deactivates every character in a chat and clears their
// per-room scenario and negative-prompt overrides.
func (s *sqlxStore) DeactivateAll(ctx context.Context, chatID int64) error {
	query := `
        UPDATE room_characters
        SET active = 0, scenario = NULL, negative_prompt = NULL, updated_at = ?
        WHERE room_id IN (SELECT id FROM rooms WHERE chat_id = ?)`

	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), chatID); err != nil {
		return fmt.Errorf("failed to deactivate characters for chat %d: %w", chatID, err)
	}
	s.logger.DebugContext(ctx, "Deactivated all characters", "chat_id", chatID)
	return nil
}

// ClearActiveScenarios clears the per-character scenario overrides in a chat
// without touching activation state.
func (s *sqlxStore) ClearActiveScenarios(ctx context.Context, chatID int64) error {
	query := `
        UPDATE room_characters
        SET scenario = NULL, updated_at = ?
        WHERE room_id IN (SELECT id FROM rooms WHERE chat_id = ?)`

	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), chatID); err != nil {
		return fmt.Errorf("failed to clear character scenarios for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlxStore) UpsertUser(ctx context.Context, telegramID int64, username string) error {
	if telegramID == 0 {
		return fmt.Errorf("telegram_id cannot be zero")
	}

	query := `
        INSERT INTO users (telegram_id, username) VALUES (?, ?)
        ON CONFLICT (telegram_id) DO UPDATE SET username = excluded.username;
    `
	if _, err := s.db.ExecContext(ctx, query, telegramID, username); err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", telegramID, err)
	}
	return nil
}

// SetNickname sets the per-room display name override for a user.
func (s *sqlxStore) SetNickname(ctx context.Context, chatID, telegramID int64, nickname string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackIfOpen(ctx, s.logger, &tx)

	roomID, err := ensureRoom(ctx, tx, chatID)
	if err != nil {
		return err
	}

	var userID int64
	err = tx.GetContext(ctx, &userID, `SELECT id FROM users WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %d is not registered", telegramID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up user %d: %w", telegramID, err)
	}

	query := `
        INSERT INTO nicknames (room_id, user_id, nickname) VALUES (?, ?, ?)
        ON CONFLICT (room_id, user_id) DO UPDATE SET nickname = excluded.nickname;
    `
	if _, err := tx.ExecContext(ctx, query, roomID, userID, nickname); err != nil {
		return fmt.Errorf("failed to set nickname for user %d in chat %d: %w", telegramID, chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Nickname updated", "chat_id", chatID, "user_id", telegramID)
	return nil
}

// DisplayName returns the user's per-room nickname, falling back to the
// stored username.
func (s *sqlxStore) DisplayName(ctx context.Context, chatID, telegramID int64) (string, error) {
	var nickname string
	query := `SELECT n.nickname
	          FROM nicknames n
	          INNER JOIN users u ON u.id = n.user_id
	          INNER JOIN rooms r ON r.id = n.room_id
	          WHERE u.telegram_id = ? AND r.chat_id = ?`

	err := s.db.GetContext(ctx, &nickname, query, telegramID, chatID)
	if err == nil {
		return nickname, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up nickname for user %d: %w", telegramID, err)
	}

	var username string
	err = s.db.GetContext(ctx, &username, `SELECT username FROM users WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %d is not registered", telegramID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up username for user %d: %w", telegramID, err)
	}
	return username, nil
}

// SaveTurn appends a turn to the room's history. tokenCount may be nil when
// the turn was stored without counting.
func (s *sqlxStore) SaveTurn(ctx context.Context, chatID int64, author, content string, tokenCount *int) error {
	if author == "" {
		return fmt.Errorf("turn must have an author")
	}
	if content == "" {
		return fmt.Errorf("turn must have non-empty content")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackIfOpen(ctx, s.logger, &tx)

	roomID, err := ensureRoom(ctx, tx, chatID)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO turns (room_id, author, content, token_count, archived, created_at)
        VALUES (?, ?, ?, ?, 0, ?)`
	if _, err := tx.ExecContext(ctx, query, roomID, author, content, tokenCount, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save turn for chat %d: %w", chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Turn saved", "chat_id", chatID, "author", author)
	return nil
}

// RecentTurns returns the most recent non-archived turns for a chat in
// ascending creation order, bounded to limit (default 200).
func (s *sqlxStore) RecentTurns(ctx context.Context, chatID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 200
	}

	var turns []Turn
	query := `
        SELECT id, created_at, room_id, author, content, token_count, archived FROM (
            SELECT t.id, t.created_at, t.room_id, t.author, t.content, t.token_count, t.archived
            FROM turns t
            INNER JOIN rooms r ON r.id = t.room_id
            WHERE r.chat_id = ? AND t.archived = 0
            ORDER BY t.id DESC
            LIMIT ?
        ) ORDER BY id ASC;
    `
	if err := s.db.SelectContext(ctx, &turns, query, chatID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent turns for chat %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "Fetched recent turns", "chat_id", chatID, "count", len(turns))
	return turns, nil
}

// ArchiveTurns marks every turn in a chat as archived without deleting records.
func (s *sqlxStore) ArchiveTurns(ctx context.Context, chatID int64) error {
	query := `
        UPDATE turns SET archived = 1
        WHERE room_id IN (SELECT id FROM rooms WHERE chat_id = ?)`

	result, err := s.db.ExecContext(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("failed to archive turns for chat %d: %w", chatID, err)
	}

	count, _ := result.RowsAffected()
	s.logger.InfoContext(ctx, "Archived turns", "chat_id", chatID, "count", count)
	return nil
}

// RunMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

// rollbackIfOpen rolls back *tx when it has not been committed. Callers set
// *tx to nil after a successful commit.
func rollbackIfOpen(ctx context.Context, logger *slog.Logger, tx **sqlx.Tx) {
	if *tx == nil {
		return
	}
	if err := (*tx).Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.WarnContext(ctx, "Error rolling back transaction", "error", err)
	}
}
