package conversation

import (
	"context"

	"github.com/google/uuid"
)

// TokenProducer generates the content of an assistant message. Generate calls
// emit once per fragment, in order, and returns once the stream is exhausted.
// A non-nil error marks the generation as failed; fragments emitted before the
// failure are kept.
type TokenProducer interface {
	Generate(ctx context.Context, emit func(token string) error) error
}

// ProducerFunc adapts an ordinary function to the TokenProducer interface.
type ProducerFunc func(ctx context.Context, emit func(token string) error) error

func (f ProducerFunc) Generate(ctx context.Context, emit func(token string) error) error {
	return f(ctx, emit)
}

// AppendOptions describes one message to append. ParentID defaults to the
// most recently appended message when unset; Producer overrides the manager's
// default producer for this assistant message.
type AppendOptions struct {
	Role       Role
	Content    *string
	ParentID   NodeID
	ExternalID string
	Producer   TokenProducer
}

// Manager owns one conversation: its message tree, the shared record store,
// event sinks and flush policy. Append is the single entry point for growing
// the tree; assistant messages spawn their generation in the background and
// return immediately with a live token stream.
type Manager interface {
	ConversationID() uuid.UUID
	Append(ctx context.Context, opts AppendOptions) (*Message, error)
	GetMessage(id NodeID) (*Message, bool)
	Thread(id NodeID) []*Message
	Tree() *Tree
	// AwaitIdle blocks until every message's outstanding background writes
	// have completed and their projections are reconciled.
	AwaitIdle(ctx context.Context) error
}
