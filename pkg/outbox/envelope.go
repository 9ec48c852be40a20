package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel says through which surface a custody event was produced.
type Channel string

const (
	ChannelOperator   Channel = "operator"
	ChannelPublicLink Channel = "public_link"
)

var ErrEmptyEnvelopeData = errors.New("envelope data is empty")

// ActorRef identifies who produced the event. Public link submissions carry
// no operator id.
type ActorRef struct {
	OperatorID *uuid.UUID `json:"operatorId,omitempty"`
	Channel    Channel    `json:"channel"`
}

func OperatorActor(operatorID uuid.UUID) *ActorRef {
	id := operatorID
	return &ActorRef{OperatorID: &id, Channel: ChannelOperator}
}

// PublicLinkActor is the anonymous signer behind a link token.
func PublicLinkActor() *ActorRef {
	return &ActorRef{Channel: ChannelPublicLink}
}

// PayloadEnvelope is what outbox_events.payload holds. Data is the
// event-type specific body from the payloads package.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes without data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, ErrEmptyEnvelopeData
	}
	env.Data = data
	return env, nil
}
