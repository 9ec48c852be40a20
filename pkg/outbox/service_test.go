package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/db/dbtest"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	recordID := uuid.New()
	operatorID := uuid.New()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCustodyCancelled,
			AggregateType: enums.AggregateCustodyRecord,
			AggregateID:   recordID,
			Actor:         OperatorActor(operatorID),
			Data:          map[string]string{"reason": "duplicate"},
			OccurredAt:    occurred,
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", recordID).First(&row).Error)
	assert.Equal(t, enums.EventCustodyCancelled, row.EventType)
	assert.False(t, row.Published())
	assert.Zero(t, row.AttemptCount)

	envelope, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.True(t, occurred.Equal(envelope.OccurredAt))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, operatorID, *envelope.Actor.OperatorID)
	assert.Equal(t, ChannelOperator, envelope.Actor.Channel)
	assert.JSONEq(t, `{"reason":"duplicate"}`, string(envelope.Data))
}

func TestEmitValidatesEvent(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	cases := []DomainEvent{
		{EventType: "unknown", AggregateType: enums.AggregateCustodyRecord, AggregateID: uuid.New()},
		{EventType: enums.EventCustodyReturned, AggregateType: "unknown", AggregateID: uuid.New()},
		{EventType: enums.EventCustodyReturned, AggregateType: enums.AggregateCustodyRecord},
	}
	for _, event := range cases {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		assert.Error(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRollsBackWithCallerTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	boom := errors.New("boom")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCustodyCheckedOut,
			AggregateType: enums.AggregateCustodyRecord,
			AggregateID:   uuid.New(),
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDecodeEnvelopeRejectsMissingData(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e","data":null}`))
	require.ErrorIs(t, err, ErrEmptyEnvelopeData)

	_, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"e"}`))
	require.ErrorIs(t, err, ErrEmptyEnvelopeData)

	_, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrEmptyEnvelopeData)

	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e","actor":{"channel":"public_link"},"data":{"a":1}}`))
	require.NoError(t, err)
	require.Equal(t, PublicLinkActor(), env.Actor)
	require.JSONEq(t, `{"a":1}`, string(env.Data))
}
