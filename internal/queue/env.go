// Package queue implements the request dispatch queue: a multi-producer,
// single-consumer FIFO of polymorphic commands against shared per-room
// conversational state, plus the dispatcher that drains it.
package queue

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"

	"troupe/internal/config"
	"troupe/internal/database"
	"troupe/internal/genbackend"
)

// MessageRef identifies a sent message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Messenger is the outbound messaging collaborator. Implementations own
// rendering concerns such as splitting long text at safe boundaries.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	Typing(ctx context.Context, chatID int64)
}

// Env carries the shared collaborators a request executes against. The
// dispatcher owns the single Env instance; requests never hold collaborator
// references themselves.
type Env struct {
	Log       *slog.Logger
	Store     database.Store
	Backend   genbackend.Client
	Cfg       *config.Config
	Messenger Messenger
	Rand      *rand.Rand
}

// Notice is a request-execution failure carrying user-visible text. The
// dispatcher performs the notify step so rollback-and-report behavior is
// uniform across request variants.
type Notice struct {
	Text string
	Err  error
}

func (n *Notice) Error() string {
	if n.Err != nil {
		return n.Err.Error()
	}
	return n.Text
}

func (n *Notice) Unwrap() error { return n.Err }

// failNotice builds a Notice from a template, substituting {{e}} with the
// underlying error text.
func failNotice(template string, err error) *Notice {
	text := template
	if err != nil {
		text = strings.ReplaceAll(template, "{{e}}", err.Error())
	}
	return &Notice{Text: text, Err: err}
}
