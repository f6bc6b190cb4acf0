// Package config manages application configuration from config.yaml,
// BOT_* environment variables, and default values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// TelegramConfig holds chat-platform settings. BotInfo is populated at
// startup from GetMe, not from configuration.
type TelegramConfig struct {
	Token   string `mapstructure:"token" validate:"required"`
	AdminID int64  `mapstructure:"admin_id" validate:"required,gt=0"`

	BotInfo *models.User `mapstructure:"-" validate:"-"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// CharactersConfig locates the character card directory.
type CharactersConfig struct {
	Dir string `mapstructure:"dir"`
}

// ChatConfig controls conversational behavior.
type ChatConfig struct {
	DefaultCharacter    string `mapstructure:"default_character" validate:"required"`
	MaxCharacters       int    `mapstructure:"max_characters" validate:"min=0"`
	ContextLength       int    `mapstructure:"context_length" validate:"min=256"`
	AddHashes           bool   `mapstructure:"add_hashes"`
	MaxPendingPerAuthor int    `mapstructure:"max_pending_per_author" validate:"min=1"`
}

// PromptConfig holds the prompt template pieces.
type PromptConfig struct {
	Preamble        string `mapstructure:"preamble"`
	PersonaHeading  string `mapstructure:"persona_heading"`
	ScenarioHeading string `mapstructure:"scenario_heading"`
	ExampleHeading  string `mapstructure:"example_heading"`
	ChatHeading     string `mapstructure:"chat_heading"`
}

// GenerationConfig holds backend sampling parameters.
type GenerationConfig struct {
	MaxNewTokens   int      `mapstructure:"max_new_tokens" validate:"min=1"`
	Temperature    float64  `mapstructure:"temperature" validate:"min=0,max=2"`
	TopP           float64  `mapstructure:"top_p" validate:"min=0,max=1"`
	NegativePrompt string   `mapstructure:"negative_prompt"`
	StopStrings    []string `mapstructure:"stop_strings"`
}

// GeminiConfig holds Gemini backend settings.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// BackendConfig selects and configures the generation backend.
type BackendConfig struct {
	Kind    string        `mapstructure:"kind" validate:"oneof=webui gemini"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=1s"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
}

// QueueConfig controls the dispatch queue.
type QueueConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"min=100ms"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// MaintenanceConfig controls the scheduled database maintenance job.
type MaintenanceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// MessagesConfig holds the user-visible notice templates.
type MessagesConfig struct {
	Welcome           string `mapstructure:"welcome"`
	NotAuthorized     string `mapstructure:"not_authorized"`
	GeneralError      string `mapstructure:"general_error"`
	GenerationFailed  string `mapstructure:"generation_failed"`
	TooManyPending    string `mapstructure:"too_many_pending"`
	CharacterUnknown  string `mapstructure:"character_unknown"`
	NowActive         string `mapstructure:"now_active"`
	ActivationFailed  string `mapstructure:"activation_failed"`
	ProvideArgument   string `mapstructure:"provide_argument"`
	NothingToClear    string `mapstructure:"nothing_to_clear"`
	Queued            string `mapstructure:"queued"`
	ScenarioSet       string `mapstructure:"scenario_set"`
	ScenarioCleared   string `mapstructure:"scenario_cleared"`
	NicknameSet       string `mapstructure:"nickname_set"`
	Deactivated       string `mapstructure:"deactivated"`
	OperationFailed   string `mapstructure:"operation_failed"`
	FreeToSpeakOn     string `mapstructure:"free_to_speak_on"`
	FreeToSpeakOff    string `mapstructure:"free_to_speak_off"`
	NoActiveCharacter string `mapstructure:"no_active_character"`
}

// Config defines the application configuration. Values can be set via
// environment variables prefixed with BOT_ (e.g., BOT_TELEGRAM_TOKEN) or
// through config.yaml.
type Config struct {
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Characters  CharactersConfig  `mapstructure:"characters"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Prompt      PromptConfig      `mapstructure:"prompt"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Logger      LoggerConfig      `mapstructure:"log"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Messages    MessagesConfig    `mapstructure:"messages"`
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path
// 3. BOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults plus environment apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Backend.Kind == "gemini" && cfg.Backend.Gemini.APIKey == "" {
		return nil, fmt.Errorf("config validation failed: backend.gemini.api_key is required for the gemini backend")
	}
	if cfg.Backend.Kind == "webui" && cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("config validation failed: backend.base_url is required for the webui backend")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "troupe.db")
	v.SetDefault("characters.dir", "characters")

	v.SetDefault("chat.default_character", "assistant")
	v.SetDefault("chat.max_characters", 0)
	v.SetDefault("chat.context_length", 2048)
	v.SetDefault("chat.add_hashes", false)
	v.SetDefault("chat.max_pending_per_author", 10)

	v.SetDefault("prompt.preamble", "This is a conversation between {{user}} and {{char}}.")
	v.SetDefault("prompt.persona_heading", "## Persona")
	v.SetDefault("prompt.scenario_heading", "## Scenario")
	v.SetDefault("prompt.example_heading", "## Example conversation")
	v.SetDefault("prompt.chat_heading", "## Chat")

	v.SetDefault("generation.max_new_tokens", 300)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("generation.stop_strings", []string{})

	v.SetDefault("backend.kind", "webui")
	v.SetDefault("backend.base_url", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout", 5*time.Minute)
	v.SetDefault("backend.gemini.model", "gemini-2.0-flash")
	v.SetDefault("backend.gemini.max_retries", 2)
	v.SetDefault("backend.gemini.retry_delay", 5*time.Second)

	v.SetDefault("queue.poll_interval", time.Second)
	v.SetDefault("queue.request_timeout", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.cron", "0 4 * * *")

	v.SetDefault("messages.welcome", "I'm ready. Mention a character or use /help to see the commands.")
	v.SetDefault("messages.not_authorized", "You are not authorized to use this command.")
	v.SetDefault("messages.general_error", "An error occurred. Please try again later.")
	v.SetDefault("messages.generation_failed", "Could not generate a reply: {{e}}")
	v.SetDefault("messages.too_many_pending", "You have too many pending requests. Wait for the queue to drain and try again.")
	v.SetDefault("messages.character_unknown", "No character with that name is registered.")
	v.SetDefault("messages.now_active", "%s now active in this chat.")
	v.SetDefault("messages.activation_failed", "Failed to activate %s: {{e}}")
	v.SetDefault("messages.provide_argument", "Please provide an argument for this command.")
	v.SetDefault("messages.nothing_to_clear", "Nothing selected to clear.")
	v.SetDefault("messages.queued", "Queued.")
	v.SetDefault("messages.scenario_set", "Chat scenario updated.")
	v.SetDefault("messages.scenario_cleared", "Chat scenario cleared.")
	v.SetDefault("messages.nickname_set", "Nickname updated.")
	v.SetDefault("messages.deactivated", "%s deactivated in this chat.")
	v.SetDefault("messages.operation_failed", "Could not complete the command: {{e}}")
	v.SetDefault("messages.free_to_speak_on", "I will now reply to every message in this chat.")
	v.SetDefault("messages.free_to_speak_off", "I will now reply only when a character is mentioned.")
	v.SetDefault("messages.no_active_character", "No character is active in this chat.")
}
