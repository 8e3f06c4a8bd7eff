package conversation

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/store"
)

type ManagerImpl struct {
	conversationID uuid.UUID
	store          store.RecordStore
	tree           *Tree
	sinks          []events.EventSink
	policy         FlushPolicy
	producer       TokenProducer
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

func WithConversationID(id uuid.UUID) ManagerOption {
	return func(m *ManagerImpl) {
		m.conversationID = id
	}
}

func WithFlushPolicy(policy FlushPolicy) ManagerOption {
	return func(m *ManagerImpl) {
		m.policy = policy
	}
}

func WithEventSinks(sinks ...events.EventSink) ManagerOption {
	return func(m *ManagerImpl) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// WithProducer sets the default token producer used for assistant messages
// appended without a per-message producer.
func WithProducer(producer TokenProducer) ManagerOption {
	return func(m *ManagerImpl) {
		m.producer = producer
	}
}

func NewManager(rs store.RecordStore, options ...ManagerOption) *ManagerImpl {
	m := &ManagerImpl{
		conversationID: uuid.New(),
		store:          rs,
		tree:           NewTree(),
		policy:         DefaultFlushPolicy(),
	}
	for _, option := range options {
		option(m)
	}
	m.policy = m.policy.normalize()
	return m
}

func (m *ManagerImpl) ConversationID() uuid.UUID {
	return m.conversationID
}

func (m *ManagerImpl) GetMessage(id NodeID) (*Message, bool) {
	return m.tree.Get(id)
}

func (m *ManagerImpl) Thread(id NodeID) []*Message {
	return m.tree.Thread(id)
}

func (m *ManagerImpl) Tree() *Tree {
	return m.tree
}

// Append validates the role/parent/content combination, persists the new
// record and inserts it into the tree. System and user messages are complete
// on return. Assistant messages are persisted as pending, their generation
// runs in the background, and the returned message's token stream delivers
// fragments as they are produced.
func (m *ManagerImpl) Append(ctx context.Context, opts AppendOptions) (*Message, error) {
	role, err := ParseRole(string(opts.Role))
	if err != nil {
		return nil, err
	}

	parentID := opts.ParentID
	if parentID.IsNull() && role != RoleSystem {
		parentID = m.tree.LastID()
	}

	producer := opts.Producer
	if producer == nil {
		producer = m.producer
	}

	switch role {
	case RoleSystem:
		if !parentID.IsNull() {
			return nil, newValidationError("system message must not have a parent")
		}
		if opts.Content == nil {
			return nil, newValidationError("system message requires content")
		}
	case RoleUser:
		if parentID.IsNull() {
			return nil, newValidationError("user message requires a parent")
		}
		if _, exists := m.tree.Get(parentID); !exists {
			return nil, newValidationError("user message parent %s not found", parentID)
		}
		if opts.Content == nil {
			return nil, newValidationError("user message requires content")
		}
	case RoleAssistant:
		if parentID.IsNull() {
			return nil, newValidationError("assistant message requires a parent")
		}
		if _, exists := m.tree.Get(parentID); !exists {
			return nil, newValidationError("assistant message parent %s not found", parentID)
		}
		if opts.Content != nil {
			return nil, newValidationError("assistant message content is generated, not supplied")
		}
		if producer == nil {
			return nil, errors.Wrap(ErrNoProducer, "cannot append assistant message")
		}
	}

	rec := store.Record{
		ID:   uuid.NewString(),
		Role: string(role),
	}
	if !parentID.IsNull() {
		s := parentID.String()
		rec.ParentID = &s
	}
	if opts.Content != nil {
		content := *opts.Content
		rec.Content = &content
	}
	if opts.ExternalID != "" {
		externalID := opts.ExternalID
		rec.ExternalID = &externalID
	}
	if role == RoleAssistant {
		// Persisted synchronously so the pending state is durable before
		// any fragment is generated.
		pending := string(StatusPending)
		rec.Status = &pending
	}

	created, err := m.store.Create(ctx, rec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to persist message record")
	}

	msg, err := newMessage(created, m.store, m.conversationID, m.sinks, m.policy)
	if err != nil {
		return nil, err
	}
	m.tree.Insert(msg)

	log.Debug().
		Str("message_id", msg.ID().String()).
		Str("role", string(role)).
		Str("conversation_id", m.conversationID.String()).
		Msg("appended message")

	if role == RoleAssistant {
		go m.runProducer(msg, producer)
	} else {
		msg.tokens.End()
	}
	return msg, nil
}

// AwaitIdle waits for every message's outstanding writes, in insertion order.
func (m *ManagerImpl) AwaitIdle(ctx context.Context) error {
	for _, msg := range m.tree.All() {
		if err := msg.AwaitOutstanding(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runProducer drives one assistant generation to completion. The token
// stream's end marker is delivered on every exit path, after the final flush,
// so a consumer that drains the stream observes the terminal record state.
func (m *ManagerImpl) runProducer(msg *Message, producer TokenProducer) {
	// Generation outlives the Append call; it is not bound to the caller's
	// context.
	ctx := context.Background()
	defer msg.Tokens().End()

	events.PublishToAll(m.sinks, events.NewStartEvent(msg.eventMetadata()))

	err := msg.WithEdit(ctx, func(e *Edit) error {
		e.SetStatus(StatusGenerating)
		if genErr := producer.Generate(ctx, e.AppendToken); genErr != nil {
			e.SetStatus(StatusError)
			return errors.Wrap(genErr, "token producer failed")
		}
		e.SetStatus(StatusFinished)
		return nil
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("message_id", msg.ID().String()).
			Msg("assistant generation failed")
		return
	}

	text, _ := msg.Content()
	events.PublishToAll(m.sinks, events.NewFinalEvent(msg.eventMetadata(), text))
}
