package events

import (
	"github.com/rs/zerolog"
)

// EventSink represents a destination for generation and diagnostic events.
// Implementations can publish events to different backends like watermill,
// logging systems, or other event processing systems.
type EventSink interface {
	// PublishEvent publishes an event to the sink.
	// Returns an error if the event could not be published.
	PublishEvent(event Event) error
}

// PublishToAll publishes the event to every sink, best effort. Individual sink
// errors are dropped so a broken sink cannot disrupt generation.
func PublishToAll(sinks []EventSink, event Event) {
	for _, sink := range sinks {
		_ = sink.PublishEvent(event)
	}
}

// NullSink is a no-op EventSink implementation that discards all events.
type NullSink struct{}

func NewNullSink() *NullSink {
	return &NullSink{}
}

func (n *NullSink) PublishEvent(event Event) error {
	return nil
}

var _ EventSink = (*NullSink)(nil)

// LogSink writes events to a zerolog logger. It is the default diagnostic sink
// for background write failures and generation errors.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) PublishEvent(event Event) error {
	ev := l.logger.Debug()
	if event.Type() == EventTypeError {
		ev = l.logger.Warn()
	}
	if obj, ok := event.(zerolog.LogObjectMarshaler); ok {
		ev.EmbedObject(obj).Msg("event")
		return nil
	}
	ev.Str("type", string(event.Type())).Msg("event")
	return nil
}

var _ EventSink = (*LogSink)(nil)
