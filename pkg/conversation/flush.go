package conversation

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultFlushTokens is the fragment-count threshold after which buffered
	// content is written to the record store.
	DefaultFlushTokens = 5
	// DefaultFlushInterval is the elapsed-time threshold after which buffered
	// content is written to the record store.
	DefaultFlushInterval = 3 * time.Second
)

// FlushPolicy bounds the staleness of persisted content during generation.
// A write is scheduled when, since the last scheduled write, either MaxTokens
// fragments were appended or MaxInterval elapsed, whichever occurs first.
// Thresholds are evaluated when a fragment arrives.
type FlushPolicy struct {
	MaxTokens   int
	MaxInterval time.Duration
}

// DefaultFlushPolicy returns the documented default thresholds.
func DefaultFlushPolicy() FlushPolicy {
	return FlushPolicy{
		MaxTokens:   DefaultFlushTokens,
		MaxInterval: DefaultFlushInterval,
	}
}

func (p FlushPolicy) normalize() FlushPolicy {
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultFlushTokens
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultFlushInterval
	}
	return p
}

// writeQueue tracks the background writes scheduled for one message. Writes
// are chained so they apply in schedule order; wait blocks until every write
// scheduled so far has completed and then clears the chain.
type writeQueue struct {
	mu    sync.Mutex
	tail  chan struct{}
	dirty bool
}

func newWriteQueue() *writeQueue {
	return &writeQueue{}
}

// schedule runs fn as a background unit of work, after all previously
// scheduled units have completed.
func (q *writeQueue) schedule(fn func()) {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		fn()
		q.mu.Lock()
		q.dirty = true
		q.mu.Unlock()
	}()
}

// wait blocks until every write scheduled so far has completed. The chain
// reference is dropped once drained so completed writes can be collected.
func (q *writeQueue) wait(ctx context.Context) error {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()
	if tail == nil {
		return nil
	}
	select {
	case <-tail:
	case <-ctx.Done():
		return ctx.Err()
	}
	q.mu.Lock()
	if q.tail == tail {
		q.tail = nil
	}
	q.mu.Unlock()
	return nil
}

// takeDirty reports whether a write completed since the last call, clearing
// the flag. Used to skip redundant projection refreshes.
func (q *writeQueue) takeDirty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	dirty := q.dirty
	q.dirty = false
	return dirty
}
