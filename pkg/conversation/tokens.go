package conversation

import "sync"

// TokenStream is the ordered queue of text fragments produced during an
// assistant generation, terminated by an explicit end marker.
//
// The producer side (Push/End) never blocks: the queue is unbounded. The
// consumer side (Next) blocks until a fragment or the end marker is available.
// A stream carries exactly one logical consumer; fan-out to multiple consumers
// is unsupported, a second consumer would race for fragments. The sequence is
// not restartable, a single traversal consumes the queue.
type TokenStream struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []string
	ended bool
}

func newTokenStream() *TokenStream {
	s := &TokenStream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push appends a fragment to the stream. Fragments pushed after End are dropped.
func (s *TokenStream) Push(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.queue = append(s.queue, token)
	s.cond.Signal()
}

// End pushes the end marker. It is idempotent; no fragment is accepted afterwards.
func (s *TokenStream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.cond.Broadcast()
}

// Next blocks until a fragment is available and returns it. It returns
// ok=false once all fragments have been consumed and the end marker was pushed.
func (s *TokenStream) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.ended {
		s.cond.Wait()
	}
	if len(s.queue) > 0 {
		token := s.queue[0]
		s.queue = s.queue[1:]
		return token, true
	}
	return "", false
}

// Drain consumes the stream to the end marker and returns the fragments in
// receipt order.
func (s *TokenStream) Drain() []string {
	var tokens []string
	for {
		token, ok := s.Next()
		if !ok {
			return tokens
		}
		tokens = append(tokens, token)
	}
}
