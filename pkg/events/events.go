package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart to EventTypeFinal track one assistant generation.
	EventTypeStart   EventType = "start"
	EventTypePartial EventType = "partial"
	EventTypeFinal   EventType = "final"
	EventTypeError   EventType = "error"
	// EventTypeStatus reports a message status transition.
	EventTypeStatus EventType = "status"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata correlates an event with the message and conversation it
// belongs to.
type EventMetadata struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.MessageID.String())
	if em.ConversationID != uuid.Nil {
		e.Str("conversation_id", em.ConversationID.String())
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON payload if the event was deserialized (see NewEventFromJson)
	payload []byte
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }
func (e *EventImpl) Payload() []byte         { return e.payload }

// SetPayload stores the raw JSON payload on the event implementation.
func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

// EventStart is published when an assistant generation begins.
type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
	}
}

var _ Event = &EventStart{}

// EventPartial carries one streamed fragment plus the accumulated completion so far.
type EventPartial struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewPartialEvent(metadata EventMetadata, delta string, completion string) *EventPartial {
	return &EventPartial{
		EventImpl:  EventImpl{Type_: EventTypePartial, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventPartial{}

// EventFinal carries the full generated text after the end marker was pushed.
type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
	}
}

var _ Event = &EventFinal{}

// EventError reports a generation failure or a failed background write.
type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

// EventStatus reports a status transition of an assistant message.
type EventStatus struct {
	EventImpl
	Status string `json:"status"`
}

func NewStatusEvent(metadata EventMetadata, status string) *EventStatus {
	return &EventStatus{
		EventImpl: EventImpl{Type_: EventTypeStatus, Metadata_: metadata},
		Status:    status,
	}
}

var _ Event = &EventStatus{}

func (e EventStart) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
}

func (e EventPartial) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("delta", e.Delta).Str("completion", e.Completion)
}

func (e EventFinal) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("text", e.Text)
}

func (e EventError) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("error", e.ErrorString)
}

func (e EventStatus) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("status", e.Status)
}

// NewEventFromJson decodes a serialized event back into its concrete type.
func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		return toTypedEvent[EventStart](e)
	case EventTypePartial:
		return toTypedEvent[EventPartial](e)
	case EventTypeFinal:
		return toTypedEvent[EventFinal](e)
	case EventTypeError:
		return toTypedEvent[EventError](e)
	case EventTypeStatus:
		return toTypedEvent[EventStatus](e)
	}

	return nil, errors.Errorf("unknown event type %q", e.Type_)
}

func toTypedEvent[T any, PT interface {
	*T
	Event
	SetPayload([]byte)
}](e *EventImpl) (Event, error) {
	var ret PT = new(T)
	if err := json.Unmarshal(e.payload, ret); err != nil {
		return nil, errors.Wrapf(err, "could not decode event %q", e.Type_)
	}
	ret.SetPayload(e.payload)
	return ret, nil
}
