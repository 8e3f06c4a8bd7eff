// Package generation provides token producers for driving assistant messages
// without a live model backend: scripted fragment sequences for demos and
// deterministic tests.
package generation

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/grillo/pkg/conversation"
)

// Scripted emits a fixed sequence of fragments, optionally pacing them with a
// fixed interval. A zero Interval emits as fast as the consumer accepts.
type Scripted struct {
	Fragments []string
	Interval  time.Duration
}

var _ conversation.TokenProducer = (*Scripted)(nil)

// NewScripted returns a producer emitting the given fragments in order.
func NewScripted(fragments ...string) *Scripted {
	return &Scripted{Fragments: fragments}
}

// Count returns a producer emitting the decimal digits "0" through
// strconv.Itoa(n-1), one fragment each.
func Count(n int) *Scripted {
	fragments := make([]string, 0, n)
	for i := 0; i < n; i++ {
		fragments = append(fragments, strconv.Itoa(i))
	}
	return &Scripted{Fragments: fragments}
}

func (s *Scripted) Generate(ctx context.Context, emit func(token string) error) error {
	for _, fragment := range s.Fragments {
		if s.Interval > 0 {
			select {
			case <-time.After(s.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := emit(fragment); err != nil {
			return errors.Wrap(err, "failed to emit fragment")
		}
	}
	return nil
}

// Failing wraps a producer so it fails after emitting the given number of
// fragments. Used to exercise error paths.
type Failing struct {
	Fragments []string
	FailAfter int
	Err       error
}

var _ conversation.TokenProducer = (*Failing)(nil)

func (f *Failing) Generate(ctx context.Context, emit func(token string) error) error {
	for i, fragment := range f.Fragments {
		if i >= f.FailAfter {
			if f.Err != nil {
				return f.Err
			}
			return errors.New("scripted failure")
		}
		if err := emit(fragment); err != nil {
			return errors.Wrap(err, "failed to emit fragment")
		}
	}
	if f.Err != nil {
		return f.Err
	}
	return errors.New("scripted failure")
}
