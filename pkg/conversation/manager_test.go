package conversation

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/store"
)

// countingStore wraps a RecordStore and counts store round-trips, so tests can
// assert on the exact number of debounced writes and projection refreshes.
type countingStore struct {
	inner   store.RecordStore
	creates atomic.Int64
	finds   atomic.Int64
	updates atomic.Int64
}

var _ store.RecordStore = (*countingStore)(nil)

func newCountingStore() *countingStore {
	return &countingStore{inner: store.NewMemoryStore()}
}

func (s *countingStore) Create(ctx context.Context, rec store.Record) (store.Record, error) {
	s.creates.Add(1)
	return s.inner.Create(ctx, rec)
}

func (s *countingStore) FindByID(ctx context.Context, id string) (store.Record, error) {
	s.finds.Add(1)
	return s.inner.FindByID(ctx, id)
}

func (s *countingStore) Update(ctx context.Context, id string, upd store.Update) (store.Record, error) {
	s.updates.Add(1)
	return s.inner.Update(ctx, id, upd)
}

// collectingSink records every published event.
type collectingSink struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.EventSink = (*collectingSink)(nil)

func (s *collectingSink) PublishEvent(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]events.EventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type())
	}
	return types
}

func countingProducer(n int) ProducerFunc {
	return func(ctx context.Context, emit func(token string) error) error {
		for i := 0; i < n; i++ {
			if err := emit(strconv.Itoa(i)); err != nil {
				return err
			}
		}
		return nil
	}
}

func appendPrompt(t *testing.T, manager Manager) *Message {
	t.Helper()
	ctx := context.Background()
	system := "be brief"
	_, err := manager.Append(ctx, AppendOptions{Role: RoleSystem, Content: &system})
	require.NoError(t, err)
	user := "count for me"
	msg, err := manager.Append(ctx, AppendOptions{Role: RoleUser, Content: &user})
	require.NoError(t, err)
	return msg
}

func TestAppendValidation(t *testing.T) {
	content := "hello"
	tests := []struct {
		name    string
		prepare func(t *testing.T, m Manager)
		opts    AppendOptions
		wantErr string
	}{
		{
			name: "system without content",
			opts: AppendOptions{Role: RoleSystem},

			wantErr: "system message requires content",
		},
		{
			name: "system with parent",
			prepare: func(t *testing.T, m Manager) {
				appendPrompt(t, m)
			},
			opts:    AppendOptions{Role: RoleSystem, Content: &content, ParentID: NewNodeID()},
			wantErr: "system message must not have a parent",
		},
		{
			name:    "user without parent",
			opts:    AppendOptions{Role: RoleUser, Content: &content},
			wantErr: "user message requires a parent",
		},
		{
			name: "user with unknown parent",
			prepare: func(t *testing.T, m Manager) {
				appendPrompt(t, m)
			},
			opts:    AppendOptions{Role: RoleUser, Content: &content, ParentID: NewNodeID()},
			wantErr: "not found",
		},
		{
			name: "user without content",
			prepare: func(t *testing.T, m Manager) {
				appendPrompt(t, m)
			},
			opts:    AppendOptions{Role: RoleUser},
			wantErr: "user message requires content",
		},
		{
			name: "assistant with content",
			prepare: func(t *testing.T, m Manager) {
				appendPrompt(t, m)
			},
			opts:    AppendOptions{Role: RoleAssistant, Content: &content},
			wantErr: "assistant message content is generated",
		},
		{
			name: "assistant without parent",
			opts: AppendOptions{Role: RoleAssistant},

			wantErr: "assistant message requires a parent",
		},
		{
			name:    "invalid role",
			opts:    AppendOptions{Role: Role("tool"), Content: &content},
			wantErr: "invalid message role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(store.NewMemoryStore(), WithProducer(countingProducer(1)))
			if tt.prepare != nil {
				tt.prepare(t, manager)
			}
			_, err := manager.Append(context.Background(), tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, IsValidationError(err), "expected a validation error, got %v", err)
		})
	}
}

func TestAppendAssistantWithoutProducer(t *testing.T) {
	manager := NewManager(store.NewMemoryStore())
	appendPrompt(t, manager)
	_, err := manager.Append(context.Background(), AppendOptions{Role: RoleAssistant})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProducer))
}

func TestAppendSystemAndUser(t *testing.T) {
	ctx := context.Background()
	cs := newCountingStore()
	manager := NewManager(cs)

	system := "be brief"
	sysMsg, err := manager.Append(ctx, AppendOptions{Role: RoleSystem, Content: &system})
	require.NoError(t, err)
	_, hasParent := sysMsg.ParentID()
	assert.False(t, hasParent)
	assert.Equal(t, StatusNone, sysMsg.Status())

	user := "count for me"
	userMsg, err := manager.Append(ctx, AppendOptions{Role: RoleUser, Content: &user, ExternalID: "req-1"})
	require.NoError(t, err)
	parentID, hasParent := userMsg.ParentID()
	require.True(t, hasParent)
	assert.Equal(t, sysMsg.ID(), parentID)
	externalID, ok := userMsg.ExternalID()
	require.True(t, ok)
	assert.Equal(t, "req-1", externalID)

	// completed on return: persisted, stream already ended
	assert.EqualValues(t, 2, cs.creates.Load())
	assert.Empty(t, userMsg.Tokens().Drain())

	rec, err := cs.FindByID(ctx, userMsg.ID().String())
	require.NoError(t, err)
	require.NotNil(t, rec.Content)
	assert.Equal(t, user, *rec.Content)
}

func TestAssistantGeneration(t *testing.T) {
	ctx := context.Background()
	cs := newCountingStore()
	sink := &collectingSink{}
	manager := NewManager(cs,
		WithProducer(countingProducer(10)),
		WithEventSinks(sink),
		WithFlushPolicy(FlushPolicy{MaxTokens: 5, MaxInterval: time.Hour}),
	)
	userMsg := appendPrompt(t, manager)

	reply, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant})
	require.NoError(t, err)

	tokens := reply.Tokens().Drain()
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, tokens)

	require.NoError(t, manager.AwaitIdle(ctx))

	content, ok := reply.Content()
	require.True(t, ok)
	assert.Equal(t, "0123456789", content)
	assert.Equal(t, StatusFinished, reply.Status())

	parentID, hasParent := reply.ParentID()
	require.True(t, hasParent)
	assert.Equal(t, userMsg.ID(), parentID)

	rec, err := cs.FindByID(ctx, reply.ID().String())
	require.NoError(t, err)
	require.NotNil(t, rec.Content)
	assert.Equal(t, "0123456789", *rec.Content)
	require.NotNil(t, rec.Status)
	assert.Equal(t, string(StatusFinished), *rec.Status)

	types := sink.types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.EventTypeStart, types[0])
	assert.Equal(t, events.EventTypeFinal, types[len(types)-1])
	partials := 0
	for _, typ := range types {
		if typ == events.EventTypePartial {
			partials++
		}
	}
	assert.Equal(t, 10, partials)
}

func TestDebouncedWriteCount(t *testing.T) {
	ctx := context.Background()
	cs := newCountingStore()
	manager := NewManager(cs,
		WithProducer(countingProducer(12)),
		WithFlushPolicy(FlushPolicy{MaxTokens: 5, MaxInterval: time.Hour}),
	)
	appendPrompt(t, manager)

	reply, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant})
	require.NoError(t, err)
	require.Len(t, reply.Tokens().Drain(), 12)
	require.NoError(t, manager.AwaitIdle(ctx))

	// 12 fragments at a threshold of 5: two debounced writes during the
	// stream, one final snapshot at scope close.
	assert.EqualValues(t, 3, cs.updates.Load())

	content, _ := reply.Content()
	assert.Equal(t, "01234567891011", content)
}

func TestPendingStatusDurableBeforeGeneration(t *testing.T) {
	ctx := context.Background()
	cs := newCountingStore()

	started := make(chan struct{})
	release := make(chan struct{})
	producer := ProducerFunc(func(ctx context.Context, emit func(token string) error) error {
		close(started)
		<-release
		return emit("ok")
	})

	manager := NewManager(cs, WithProducer(producer))
	appendPrompt(t, manager)

	reply, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant})
	require.NoError(t, err)

	// the pending record was written synchronously by Append
	rec, err := cs.FindByID(ctx, reply.ID().String())
	require.NoError(t, err)
	require.NotNil(t, rec.Status)
	assert.Equal(t, string(StatusPending), *rec.Status)
	assert.Nil(t, rec.Content)

	<-started
	close(release)
	require.Len(t, reply.Tokens().Drain(), 1)
	require.NoError(t, manager.AwaitIdle(ctx))
	assert.Equal(t, StatusFinished, reply.Status())
}

func TestMidStreamDurability(t *testing.T) {
	ctx := context.Background()
	cs := newCountingStore()

	flushed := make(chan struct{})
	release := make(chan struct{})
	producer := ProducerFunc(func(ctx context.Context, emit func(token string) error) error {
		for i := 0; i < 5; i++ {
			if err := emit(strconv.Itoa(i)); err != nil {
				return err
			}
		}
		close(flushed)
		<-release
		for i := 5; i < 10; i++ {
			if err := emit(strconv.Itoa(i)); err != nil {
				return err
			}
		}
		return nil
	})

	manager := NewManager(cs,
		WithProducer(producer),
		WithFlushPolicy(FlushPolicy{MaxTokens: 5, MaxInterval: time.Hour}),
	)
	appendPrompt(t, manager)

	reply, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant})
	require.NoError(t, err)

	<-flushed
	// the fifth fragment crossed the threshold; the snapshot write runs in
	// the background, so poll for it
	require.Eventually(t, func() bool {
		rec, err := cs.inner.FindByID(ctx, reply.ID().String())
		if err != nil || rec.Content == nil || rec.Status == nil {
			return false
		}
		return *rec.Content == "01234" && *rec.Status == string(StatusGenerating)
	}, time.Second, 5*time.Millisecond, "debounced snapshot never became durable")

	close(release)
	require.Len(t, reply.Tokens().Drain(), 10)
	require.NoError(t, manager.AwaitIdle(ctx))

	content, _ := reply.Content()
	assert.Equal(t, "0123456789", content)
	assert.Equal(t, StatusFinished, reply.Status())
}

func TestProducerFailure(t *testing.T) {
	ctx := context.Background()
	cs := newCountingStore()
	sink := &collectingSink{}

	producer := ProducerFunc(func(ctx context.Context, emit func(token string) error) error {
		for _, token := range []string{"a", "b", "c"} {
			if err := emit(token); err != nil {
				return err
			}
		}
		return errors.New("backend exploded")
	})

	manager := NewManager(cs, WithProducer(producer), WithEventSinks(sink))
	appendPrompt(t, manager)

	reply, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant})
	require.NoError(t, err)

	// the end marker arrives even though generation failed
	assert.Equal(t, []string{"a", "b", "c"}, reply.Tokens().Drain())
	require.NoError(t, manager.AwaitIdle(ctx))

	assert.Equal(t, StatusError, reply.Status())
	content, _ := reply.Content()
	assert.Equal(t, "abc", content)

	// the fragments produced before the failure are durable
	rec, err := cs.FindByID(ctx, reply.ID().String())
	require.NoError(t, err)
	require.NotNil(t, rec.Content)
	assert.Equal(t, "abc", *rec.Content)
	require.NotNil(t, rec.Status)
	assert.Equal(t, string(StatusError), *rec.Status)

	types := sink.types()
	assert.Contains(t, types, events.EventTypeError)
	assert.NotContains(t, types, events.EventTypeFinal)
}

func TestAwaitIdleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cs := newCountingStore()
	manager := NewManager(cs, WithProducer(countingProducer(10)))
	appendPrompt(t, manager)

	reply, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant})
	require.NoError(t, err)
	reply.Tokens().Drain()
	require.NoError(t, manager.AwaitIdle(ctx))

	finds := cs.finds.Load()
	updates := cs.updates.Load()
	statusBefore := reply.Status()

	require.NoError(t, manager.AwaitIdle(ctx))
	require.NoError(t, manager.AwaitIdle(ctx))

	assert.Equal(t, finds, cs.finds.Load(), "await without new mutations must not re-read")
	assert.Equal(t, updates, cs.updates.Load(), "await without new mutations must not re-write")
	assert.Equal(t, statusBefore, reply.Status())
}

func TestPerMessageProducerOverride(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(store.NewMemoryStore(), WithProducer(countingProducer(3)))
	appendPrompt(t, manager)

	reply, err := manager.Append(ctx, AppendOptions{
		Role:     RoleAssistant,
		Producer: countingProducer(5),
	})
	require.NoError(t, err)
	assert.Len(t, reply.Tokens().Drain(), 5)
	require.NoError(t, manager.AwaitIdle(ctx))
}

func TestBranchingTree(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(store.NewMemoryStore(), WithProducer(countingProducer(2)))
	userMsg := appendPrompt(t, manager)

	first, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant, ParentID: userMsg.ID()})
	require.NoError(t, err)
	first.Tokens().Drain()

	second, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant, ParentID: userMsg.ID()})
	require.NoError(t, err)
	second.Tokens().Drain()
	require.NoError(t, manager.AwaitIdle(ctx))

	children := manager.Tree().Children(userMsg.ID())
	assert.ElementsMatch(t, []NodeID{first.ID(), second.ID()}, children)
	assert.Equal(t, []NodeID{second.ID()}, manager.Tree().Siblings(first.ID()))

	thread := manager.Thread(second.ID())
	require.Len(t, thread, 3)
	assert.Equal(t, RoleSystem, thread[0].Role())
	assert.Equal(t, RoleUser, thread[1].Role())
	assert.Equal(t, second.ID(), thread[2].ID())

	// leftmost descent picks the first branch
	leftmost := manager.Tree().LeftmostThread(manager.Tree().RootID())
	require.Len(t, leftmost, 3)
	assert.Equal(t, first.ID(), leftmost[2].ID())
}
