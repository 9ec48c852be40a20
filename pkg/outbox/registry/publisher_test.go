package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	"github.com/angelmondragon/cautela-backend/pkg/outbox"
	"github.com/angelmondragon/cautela-backend/pkg/outbox/payloads"
)

const custodyTopic = "custody-topic"

func TestResolveCheckoutEvent(t *testing.T) {
	reg := testRegistry(t)
	recordID := uuid.New()
	signedAt := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	resolved, err := reg.Resolve(custodyRow(enums.EventCustodyCheckedOut, recordID, wrap(t, 1, payloads.CustodySignedEvent{
		CustodyRecordID:  recordID,
		SignatureEventID: uuid.New(),
		Role:             enums.SignatureRoleCheckout,
		SignerName:       "Maria Souza",
		PreviousStatus:   enums.CustodyStatusPending,
		Status:           enums.CustodyStatusCheckedOut,
		SignedAt:         signedAt,
	})))
	require.NoError(t, err)

	assert.Equal(t, custodyTopic, resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	payload, ok := resolved.Payload.(*payloads.CustodySignedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, recordID, payload.CustodyRecordID)
	assert.Equal(t, enums.CustodyStatusCheckedOut, payload.Status)
	assert.True(t, payload.SignedAt.Equal(signedAt))
}

func TestRegistryCoversEveryCustodyEvent(t *testing.T) {
	reg := testRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventCustodyRecordCreated,
		enums.EventCustodyCheckedOut,
		enums.EventCustodyReturned,
		enums.EventCustodyReturnInitiated,
		enums.EventCustodyCancelled,
	} {
		desc, ok := reg.entries[eventType]
		require.True(t, ok, "no descriptor for %s", eventType)
		assert.Equal(t, enums.AggregateCustodyRecord, desc.AggregateType)
	}
	assert.Equal(t, []string{custodyTopic}, reg.Topics())
}

func TestResolveRejectsUnpublishableRows(t *testing.T) {
	recordID := uuid.New()
	cases := []struct {
		name string
		row  func(t *testing.T) models.OutboxEvent
	}{
		{
			name: "unknown event type",
			row: func(t *testing.T) models.OutboxEvent {
				return custodyRow("record_deleted", recordID, wrap(t, 1, map[string]string{"reason": "none"}))
			},
		},
		{
			name: "foreign aggregate",
			row: func(t *testing.T) models.OutboxEvent {
				row := custodyRow(enums.EventCustodyCancelled, recordID, wrap(t, 1, payloads.CustodyCancelledEvent{CustodyRecordID: recordID}))
				row.AggregateType = "operator"
				return row
			},
		},
		{
			name: "missing aggregate id",
			row: func(t *testing.T) models.OutboxEvent {
				return custodyRow(enums.EventCustodyRecordCreated, uuid.Nil, wrap(t, 1, map[string]any{}))
			},
		},
		{
			name: "null payload",
			row: func(t *testing.T) models.OutboxEvent {
				return custodyRow(enums.EventCustodyReturned, recordID, wrap(t, 1, nil))
			},
		},
		{
			name: "payload for another record",
			row: func(t *testing.T) models.OutboxEvent {
				return custodyRow(enums.EventCustodyReturnInitiated, recordID, wrap(t, 1, payloads.CustodyReturnInitiatedEvent{
					CustodyRecordID: uuid.New(),
					InitiatedBy:     uuid.New(),
					InitiatedAt:     time.Now().UTC(),
				}))
			},
		},
		{
			name: "newer envelope version",
			row: func(t *testing.T) models.OutboxEvent {
				return custodyRow(enums.EventCustodyCancelled, recordID, wrap(t, 2, payloads.CustodyCancelledEvent{CustodyRecordID: recordID}))
			},
		},
		{
			name: "not an envelope",
			row: func(t *testing.T) models.OutboxEvent {
				return custodyRow(enums.EventCustodyCancelled, recordID, json.RawMessage(`"plain string"`))
			},
		},
	}

	reg := testRegistry(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Resolve(tc.row(t))
			require.Error(t, err)
			var nonRetry NonRetryableError
			assert.ErrorAs(t, err, &nonRetry)
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.Error(t, err)
}

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{CustodyTopic: custodyTopic})
	require.NoError(t, err)
	return reg
}

func custodyRow(eventType enums.OutboxEventType, recordID uuid.UUID, payload json.RawMessage) models.OutboxEvent {
	return models.OutboxEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCustodyRecord,
		AggregateID:   recordID,
		Payload:       payload,
	}
}

// wrap builds a stored envelope around data. A nil data encodes as JSON null.
func wrap(t *testing.T, version int, data any) json.RawMessage {
	t.Helper()
	body, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       body,
	})
	require.NoError(t, err)
	return raw
}
