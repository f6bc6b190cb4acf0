package database

import (
	"database/sql"
	"time"
)

// Character is a room-independent persona definition loaded from a
// character card and stored by filename stem.
type Character struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Filename        string `db:"filename"`
	Name            string `db:"name"`
	Persona         string `db:"persona"`
	ExampleDialogue string `db:"example_dialogue"`
	Greeting        string `db:"greeting"`
}

// ActiveCharacter is a character joined with its per-room overlay:
// activation state plus optional scenario and negative-prompt overrides.
type ActiveCharacter struct {
	Character
	Scenario       sql.NullString `db:"room_scenario"`
	NegativePrompt sql.NullString `db:"room_negative_prompt"`
}

// Turn is one persisted message in a room's conversation history.
// TokenCount is null when the turn was stored without counting.
// The autoincrement ID provides the monotonic creation order used for
// history retrieval.
type Turn struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	RoomID     int64         `db:"room_id"`
	Author     string        `db:"author"`
	Content    string        `db:"content"`
	TokenCount sql.NullInt64 `db:"token_count"`
	Archived   bool          `db:"archived"`
}

// Room is the per-chat overlay: scenario text and whether the bot replies
// to every message or only to mentions.
type Room struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ChatID      int64          `db:"chat_id"`
	Scenario    sql.NullString `db:"scenario"`
	FreeToSpeak bool           `db:"free_to_speak"`
}
