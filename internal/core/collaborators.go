package core

import (
	"context"

	"github.com/vovakirdan/liveroom-server/internal/store"
)

// Persister is the persistence collaborator. Every call made by the core is
// best-effort: failures are logged and never block delivery.
type Persister interface {
	store.ChatStore
	store.PollStore
	store.AttendanceStore
	store.WhiteboardStore
}

// Answerer produces tutor answers for questions asked in live sessions.
type Answerer interface {
	Ask(ctx context.Context, question, userID, roomID string) (string, error)
}

// AnswererFunc adapts a function to Answerer.
type AnswererFunc func(ctx context.Context, question, userID, roomID string) (string, error)

// Ask calls f.
func (f AnswererFunc) Ask(ctx context.Context, question, userID, roomID string) (string, error) {
	return f(ctx, question, userID, roomID)
}

// Moderator suggests follow-ups for a chat line sent with ai_assist. An
// Answerer passed to NewRouter that also implements Moderator serves both.
type Moderator interface {
	Suggest(ctx context.Context, message, userID, roomID string) ([]string, error)
}

// IdentityVerifier turns a bearer token into an identity or rejects it.
type IdentityVerifier interface {
	Verify(token string) (Identity, error)
}
