package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/store"
)

// Message is the in-memory projection of a persisted record. Accessors reflect
// the last-known state: during an active generation they may lag the latest
// buffered mutation until the next flush, bounded by the flush policy, and may
// run ahead of the persisted record (optimistic local value) until a refresh
// reconciles them from the authoritative store.
//
// Each message exclusively owns its token stream, its pending-mutation buffer
// and its outstanding-write queue.
type Message struct {
	id             NodeID
	conversationID uuid.UUID
	store          store.RecordStore
	sinks          []events.EventSink
	policy         FlushPolicy

	tokens *TokenStream
	writes *writeQueue

	mu   sync.RWMutex
	rec  store.Record
	edit *Edit
}

func newMessage(rec store.Record, rs store.RecordStore, conversationID uuid.UUID, sinks []events.EventSink, policy FlushPolicy) (*Message, error) {
	id, err := ParseNodeID(rec.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid record id %q", rec.ID)
	}
	return &Message{
		id:             id,
		conversationID: conversationID,
		store:          rs,
		sinks:          sinks,
		policy:         policy.normalize(),
		tokens:         newTokenStream(),
		writes:         newWriteQueue(),
		rec:            rec,
	}, nil
}

func (m *Message) ID() NodeID {
	return m.id
}

func (m *Message) Role() Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Role(m.rec.Role)
}

// Content returns the message content from the current projection.
// ok is false while the content is unset (a freshly appended assistant message).
func (m *Message) Content() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.Content == nil {
		return "", false
	}
	return *m.rec.Content, true
}

// ParentID returns the parent node id, or ok=false for the root message.
func (m *Message) ParentID() (NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.ParentID == nil {
		return NullNode, false
	}
	id, err := ParseNodeID(*m.rec.ParentID)
	if err != nil {
		return NullNode, false
	}
	return id, true
}

func (m *Message) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.Status == nil {
		return StatusNone
	}
	return Status(*m.rec.Status)
}

func (m *Message) ExternalID() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.ExternalID == nil {
		return "", false
	}
	return *m.rec.ExternalID, true
}

// Record returns a copy of the current projection.
func (m *Message) Record() store.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec
}

// Tokens returns the message's token stream. Single consumer; see TokenStream.
func (m *Message) Tokens() *TokenStream {
	return m.tokens
}

// Edit opens the message's mutation scope. At most one scope may be open at a
// time; a second call before Close fails with ErrEditOpen and leaves the open
// scope unaffected.
func (m *Message) Edit() (*Edit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edit != nil {
		return nil, errors.Wrap(ErrEditOpen, m.id.String())
	}
	e := newEdit(m, m.rec)
	m.edit = e
	return e, nil
}

// WithEdit runs fn inside a mutation scope and guarantees the scope's release:
// the buffered mutations are flushed, outstanding writes awaited and the
// projection refreshed even when fn fails. A fn error is reported to the event
// sinks and then propagated to the caller after cleanup.
func (m *Message) WithEdit(ctx context.Context, fn func(e *Edit) error) error {
	e, err := m.Edit()
	if err != nil {
		return err
	}
	fnErr := fn(e)
	if fnErr != nil {
		log.Warn().Err(fnErr).Str("message_id", m.id.String()).Msg("edit scope failed, flushing buffered mutations")
		events.PublishToAll(m.sinks, events.NewErrorEvent(m.eventMetadata(), fnErr))
	}
	closeErr := e.Close(ctx)
	if fnErr != nil {
		return fnErr
	}
	return closeErr
}

// AwaitOutstanding blocks until every background write scheduled so far for
// this message has completed, then refreshes the projection from the store.
// The refresh happens at most once per completed write batch: calling
// AwaitOutstanding again without new mutations performs no additional store
// round-trip and leaves the projection unchanged.
func (m *Message) AwaitOutstanding(ctx context.Context) error {
	if err := m.writes.wait(ctx); err != nil {
		return err
	}
	return m.refresh(ctx)
}

// refresh reloads the projection from the authoritative store. Pending
// buffered mutations of an open edit scope are re-applied on top so a stale
// stored value never regresses a newer optimistic one.
func (m *Message) refresh(ctx context.Context) error {
	if !m.writes.takeDirty() {
		return nil
	}
	rec, err := m.store.FindByID(ctx, m.id.String())
	if err != nil {
		log.Warn().Err(err).Str("message_id", m.id.String()).Msg("projection refresh failed, keeping local state")
		return errors.Wrap(err, "projection refresh failed")
	}
	m.mu.Lock()
	m.rec = rec
	if m.edit != nil {
		m.edit.overlay(&m.rec)
	}
	m.mu.Unlock()
	return nil
}

// scheduleUpdate enqueues a partial update as a background unit of work,
// ordered after all previously scheduled writes for this message. A failed
// write is reported to the sinks and superseded by the next full snapshot.
func (m *Message) scheduleUpdate(upd store.Update) {
	m.writes.schedule(func() {
		if _, err := m.store.Update(context.Background(), m.id.String(), upd); err != nil {
			log.Warn().Err(err).Str("message_id", m.id.String()).Msg("background record write failed")
			events.PublishToAll(m.sinks, events.NewErrorEvent(m.eventMetadata(), err))
		}
	})
}

// applyLocal mutates the in-memory projection optimistically.
func (m *Message) applyLocal(fn func(rec *store.Record)) {
	m.mu.Lock()
	fn(&m.rec)
	m.mu.Unlock()
}

func (m *Message) clearEdit(e *Edit) {
	m.mu.Lock()
	if m.edit == e {
		m.edit = nil
	}
	m.mu.Unlock()
}

func (m *Message) eventMetadata() events.EventMetadata {
	return events.EventMetadata{
		MessageID:      uuid.UUID(m.id),
		ConversationID: m.conversationID,
	}
}
