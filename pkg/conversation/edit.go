package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/store"
)

// Edit is a message's open mutation scope. Field setters accumulate mutations
// in the buffer and update the in-memory projection optimistically; nothing
// hits the store until a debounce threshold is crossed or the scope closes.
// Close guarantees a final full-snapshot flush, waits for all outstanding
// writes and reconciles the projection from the store.
//
// An Edit is owned by the single producer that opened it and must not be
// shared across goroutines.
type Edit struct {
	msg *Message

	mu             sync.Mutex
	fields         store.Update
	content        string
	contentTouched bool
	tokensSince    int
	lastScheduled  time.Time
	closed         bool
}

func newEdit(m *Message, rec store.Record) *Edit {
	e := &Edit{
		msg:           m,
		lastScheduled: time.Now(),
	}
	if rec.Content != nil {
		e.content = *rec.Content
	}
	return e
}

// snapshotLocked captures the full buffered mutation set. Each scheduled write
// carries a complete snapshot, not a diff, so a later write supersedes an
// earlier one's staleness. Callers must hold e.mu.
func (e *Edit) snapshotLocked() store.Update {
	upd := e.fields
	if e.contentTouched {
		content := e.content
		upd.Content = &content
	}
	return upd
}

// overlay re-applies the buffered mutations on top of a freshly loaded record
// so a refresh never regresses an optimistic local value. Called with the
// message lock held.
func (e *Edit) overlay(rec *store.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshotLocked().Apply(rec)
}

// SetStatus buffers a status transition and publishes it to the event sinks.
func (e *Edit) SetStatus(status Status) {
	s := string(status)
	e.mu.Lock()
	e.fields.Status = &s
	e.mu.Unlock()

	e.msg.applyLocal(func(rec *store.Record) {
		rec.Status = &s
	})
	events.PublishToAll(e.msg.sinks, events.NewStatusEvent(e.msg.eventMetadata(), s))
}

// SetExternalID buffers an external correlation id.
func (e *Edit) SetExternalID(externalID string) {
	e.mu.Lock()
	e.fields.ExternalID = &externalID
	e.mu.Unlock()

	e.msg.applyLocal(func(rec *store.Record) {
		rec.ExternalID = &externalID
	})
}

// SetParentID buffers a late parent linkage.
func (e *Edit) SetParentID(parentID NodeID) {
	s := parentID.String()
	e.mu.Lock()
	e.fields.ParentID = &s
	e.mu.Unlock()

	e.msg.applyLocal(func(rec *store.Record) {
		rec.ParentID = &s
	})
}

// AppendToken appends one generated fragment: the buffered content grows, the
// fragment is delivered to the token stream, a partial event is published, and
// a background write is scheduled when a flush threshold is crossed.
func (e *Edit) AppendToken(token string) error {
	e.mu.Lock()
	e.content += token
	e.contentTouched = true
	e.tokensSince++
	completion := e.content
	var flush *store.Update
	if e.tokensSince >= e.msg.policy.MaxTokens || time.Since(e.lastScheduled) >= e.msg.policy.MaxInterval {
		e.tokensSince = 0
		e.lastScheduled = time.Now()
		upd := e.snapshotLocked()
		flush = &upd
	}
	e.mu.Unlock()

	e.msg.applyLocal(func(rec *store.Record) {
		rec.Content = &completion
	})
	e.msg.tokens.Push(token)
	events.PublishToAll(e.msg.sinks, events.NewPartialEvent(e.msg.eventMetadata(), token, completion))
	if flush != nil {
		e.msg.scheduleUpdate(*flush)
	}
	return nil
}

// Close releases the scope: the buffered mutation set is scheduled as a final
// ordered write, all outstanding writes are awaited, the projection is
// refreshed from the store and the buffer is cleared. Close is idempotent.
func (e *Edit) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	upd := e.snapshotLocked()
	e.mu.Unlock()

	if !upd.IsZero() {
		e.msg.scheduleUpdate(upd)
	}
	err := e.msg.AwaitOutstanding(ctx)
	e.msg.clearEdit(e)
	return err
}
