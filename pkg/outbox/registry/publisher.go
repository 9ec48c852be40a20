package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	"github.com/angelmondragon/cautela-backend/pkg/outbox"
	"github.com/angelmondragon/cautela-backend/pkg/outbox/payloads"
)

// Highest envelope version this build can decode.
const maxEnvelopeVersion = 1

// EventDescriptor routes one event type to its topic and payload shape.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row whose envelope and payload decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never publish as stored. The
// dispatcher dead-letters it instead of counting another attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func terminal(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type recordScoped interface {
	RecordID() uuid.UUID
}

func custodyEvent[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  enums.AggregateCustodyRecord,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// EventRegistry knows every event type the custody service emits.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := cfg.CustodyTopic
	if topic == "" {
		return nil, errors.New("custody topic is required")
	}
	descriptors := []EventDescriptor{
		custodyEvent[payloads.CustodyRecordCreatedEvent](enums.EventCustodyRecordCreated, topic),
		custodyEvent[payloads.CustodySignedEvent](enums.EventCustodyCheckedOut, topic),
		custodyEvent[payloads.CustodySignedEvent](enums.EventCustodyReturned, topic),
		custodyEvent[payloads.CustodyReturnInitiatedEvent](enums.EventCustodyReturnInitiated, topic),
		custodyEvent[payloads.CustodyCancelledEvent](enums.EventCustodyCancelled, topic),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// Topics returns the distinct destination topics in sorted order.
func (r *EventRegistry) Topics() []string {
	set := map[string]struct{}{}
	for _, d := range r.entries {
		set[d.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Resolve decodes a row. Every failure is non-retryable: a row that is
// malformed now stays malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, terminal("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, terminal("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, terminal("missing aggregate_id")
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if errors.Is(err, outbox.ErrEmptyEnvelopeData) {
		return nil, terminal("payload missing for %s", event.EventType)
	}
	if err != nil {
		return nil, terminal("%w", err)
	}
	if env.Version < 1 || env.Version > maxEnvelopeVersion {
		return nil, terminal("unsupported envelope version %d", env.Version)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, terminal("decode %s payload: %w", event.EventType, err)
	}
	if scoped, ok := payload.(recordScoped); ok && scoped.RecordID() != event.AggregateID {
		return nil, terminal("%s payload names record %s but row aggregate is %s", event.EventType, scoped.RecordID(), event.AggregateID)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
