package handlers

import (
	"testing"

	"troupe/internal/queue"
)

func pendingTurns(q *queue.Queue, authorID int64, n int) {
	for i := 0; i < n; i++ {
		q.Enqueue(queue.NewChatGenerationRequest(1, authorID, "user", "hello", false))
	}
}

func TestAdmitChatTurn(t *testing.T) {
	t.Parallel()

	const limit = 10

	tests := []struct {
		name    string
		pending int
		want    bool
	}{
		{"empty queue", 0, true},
		{"below the limit", limit - 1, true},
		{"at the limit", limit, true},
		{"over the limit", limit + 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			q := queue.NewQueue()
			pendingTurns(q, 42, tc.pending)

			got := admitChatTurn(q, queue.NewChatGenerationRequest(1, 42, "user", "again", false), limit)
			if got != tc.want {
				t.Fatalf("admitChatTurn() with %d pending = %v, want %v", tc.pending, got, tc.want)
			}

			wantLen := tc.pending
			if tc.want {
				wantLen++
			}
			if q.Len() != wantLen {
				t.Errorf("queue length = %d, want %d", q.Len(), wantLen)
			}
		})
	}
}

func TestAdmitChatTurnIsPerAuthor(t *testing.T) {
	t.Parallel()

	q := queue.NewQueue()
	pendingTurns(q, 42, 11)
	pendingTurns(q, 7, 2)

	if admitChatTurn(q, queue.NewChatGenerationRequest(1, 42, "user", "again", false), 10) {
		t.Error("admitChatTurn() accepted an author over the limit")
	}
	if !admitChatTurn(q, queue.NewChatGenerationRequest(1, 7, "other", "hi", false), 10) {
		t.Error("admitChatTurn() rejected an author far below the limit")
	}
}

func TestAdmitChatTurnZeroLimitDisablesCheck(t *testing.T) {
	t.Parallel()

	q := queue.NewQueue()
	pendingTurns(q, 42, 50)

	if !admitChatTurn(q, queue.NewChatGenerationRequest(1, 42, "user", "again", false), 0) {
		t.Error("admitChatTurn() with a zero limit rejected a turn")
	}
}
