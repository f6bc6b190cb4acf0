package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Request is one unit of queued work. A request is immutable once
// enqueued, is consumed exactly once by the dispatcher, and is never
// re-enqueued automatically.
type Request interface {
	// ChatID is the originating room.
	ChatID() int64
	// AuthorID is the originating author.
	AuthorID() int64
	// Execute runs the request against the shared collaborators. A
	// returned *Notice carries user-visible failure text for the
	// dispatcher to deliver.
	Execute(ctx context.Context, env *Env) error
}

// base carries the originating room and author shared by all variants.
type base struct {
	chatID   int64
	authorID int64
}

func (b base) ChatID() int64   { return b.chatID }
func (b base) AuthorID() int64 { return b.authorID }

// Queue is a logically unbounded FIFO. Enqueue is safe from arbitrarily
// many producers and never blocks; dequeue happens only on the dispatcher
// goroutine.
type Queue struct {
	mu    sync.Mutex
	items []Request
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a request. It never rejects based on queue size.
func (q *Queue) Enqueue(r Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, r)
}

// dequeue removes and returns the oldest pending request, or nil when the
// queue is empty.
func (q *Queue) dequeue() Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PendingChatTurns counts the author's already-queued, not-yet-executed
// chat-turn requests by scanning current queue contents. Producers use it
// for per-author admission control; administrative variants are not
// counted.
func (q *Queue) PendingChatTurns(authorID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, r := range q.items {
		if _, ok := r.(*ChatGenerationRequest); ok && r.AuthorID() == authorID {
			count++
		}
	}
	return count
}

// Dispatcher is the single consumer. It removes the oldest pending request
// and executes it to completion before removing the next one; no two
// requests ever execute concurrently.
type Dispatcher struct {
	queue          *Queue
	env            *Env
	log            *slog.Logger
	pollInterval   time.Duration
	requestTimeout time.Duration
}

// NewDispatcher creates a dispatcher draining q against env.
func NewDispatcher(q *Queue, env *Env, pollInterval, requestTimeout time.Duration) *Dispatcher {
	log := env.Log
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		queue:          q,
		env:            env,
		log:            log.With("component", "dispatcher"),
		pollInterval:   pollInterval,
		requestTimeout: requestTimeout,
	}
}

// Run drains the queue in strict FIFO order until ctx is cancelled. When
// the queue is empty the consumer idles on the poll interval instead of
// busy-spinning. Errors and panics inside a request never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("Dispatcher started", "poll_interval", d.pollInterval)

	for {
		if err := ctx.Err(); err != nil {
			d.log.Info("Dispatcher stopping", "reason", context.Cause(ctx))
			return err
		}

		r := d.queue.dequeue()
		if r == nil {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(d.pollInterval):
				continue
			}
		}

		d.executeOne(ctx, r)
	}
}

// executeOne runs a single request with failure isolation: any error or
// panic is logged, an attached user-visible notice is delivered, and the
// loop proceeds.
func (d *Dispatcher) executeOne(ctx context.Context, r Request) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.ErrorContext(ctx, "Panic during request execution",
				"request_type", requestType(r), "chat_id", r.ChatID(), "panic", rec)
		}
	}()

	reqCtx := ctx
	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}

	d.log.DebugContext(ctx, "Executing request",
		"request_type", requestType(r), "chat_id", r.ChatID(), "author_id", r.AuthorID())

	err := r.Execute(reqCtx, d.env)
	if err == nil {
		return
	}

	d.log.ErrorContext(ctx, "Request execution failed",
		"request_type", requestType(r), "chat_id", r.ChatID(), "error", err)

	var notice *Notice
	if errors.As(err, &notice) && notice.Text != "" {
		// Deliver on the loop context: the per-request timeout may
		// already have expired.
		if _, sendErr := d.env.Messenger.Send(ctx, r.ChatID(), notice.Text); sendErr != nil {
			d.log.ErrorContext(ctx, "Failed to deliver failure notice",
				"chat_id", r.ChatID(), "error", sendErr)
		}
	}
}

func requestType(r Request) string {
	switch r.(type) {
	case *ChatGenerationRequest:
		return "chat_generation"
	case *ActivateRequest:
		return "activate"
	case *GenericDatabaseRequest:
		return "generic_database"
	case *ClearRequest:
		return "clear"
	case *SaveAndSendMessageRequest:
		return "save_and_send"
	case *GenericGenerationRequest:
		return "generic_generation"
	default:
		return "unknown"
	}
}
