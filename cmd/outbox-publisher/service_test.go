package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/outbox"
	"github.com/angelmondragon/cautela-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/cautela-backend/pkg/outbox/registry"
)

func custodyEvent(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateCustodyRecord,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func signedResolution() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "custody-events",
			AggregateType: enums.AggregateCustodyRecord,
		},
		Envelope: outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:  &payloads.CustodySignedEvent{},
	}
}

func TestDispatchBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		custodyEvent(t, enums.EventCustodyCheckedOut, 0),
		custodyEvent(t, enums.EventCustodyReturned, 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	dlq := &fakeDLQRepo{}
	dispatcher := newTestDispatcher(t, repo, pub, &fakeRegistry{resolved: signedResolution()}, dlq, nil)

	found, err := dispatcher.dispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("dispatch batch returned error: %v", err)
	}
	if !found {
		t.Fatalf("expected batch to report rows found")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row marked published, got %v", repo.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(dlq.entries))
	}
}

func TestDispatchBatchRecordsSettledOutcomes(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		custodyEvent(t, enums.EventCustodyCheckedOut, 0),
		custodyEvent(t, enums.EventCustodyReturned, 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolution := signedResolution()
	resolution.Envelope.OccurredAt = occurred
	dispatcher := newTestDispatcher(t, repo, pub, &fakeRegistry{resolved: resolution}, &fakeDLQRepo{}, nil)
	recorder := &fakeRecorder{}
	dispatcher.metrics = recorder
	dispatcher.now = func() time.Time { return occurred.Add(3 * time.Second) }

	if _, err := dispatcher.dispatchBatch(context.Background()); err != nil {
		t.Fatalf("dispatch batch returned error: %v", err)
	}
	want := []string{"custody_checked_out/retry", "custody_returned/published"}
	if len(recorder.settled) != len(want) {
		t.Fatalf("expected %v, got %v", want, recorder.settled)
	}
	for i := range want {
		if recorder.settled[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, recorder.settled)
		}
	}
	if len(recorder.lags) != 1 || recorder.lags[0] != 3*time.Second {
		t.Fatalf("expected a single 3s delivery lag, got %v", recorder.lags)
	}
}

func TestDispatchBatchOrdersByCustodyRecord(t *testing.T) {
	event := custodyEvent(t, enums.EventCustodyCheckedOut, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	dispatcher := newTestDispatcher(t, repo, pub, &fakeRegistry{resolved: signedResolution()}, &fakeDLQRepo{}, nil)

	if _, err := dispatcher.dispatchBatch(context.Background()); err != nil {
		t.Fatalf("dispatch batch returned error: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.OrderingKey != event.AggregateID.String() {
		t.Fatalf("expected ordering key %s, got %s", event.AggregateID, msg.OrderingKey)
	}
	if msg.Attributes["custody_record_id"] != event.AggregateID.String() {
		t.Fatalf("missing custody_record_id attribute")
	}
	if msg.Attributes["event_type"] != string(enums.EventCustodyCheckedOut) {
		t.Fatalf("unexpected event_type %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["custody_status"] != string(enums.CustodyStatusCheckedOut) {
		t.Fatalf("unexpected custody_status %q", msg.Attributes["custody_status"])
	}
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("message data should be the stored envelope")
	}
}

func TestDispatchBatchDeadLettersUndecodableRows(t *testing.T) {
	event := custodyEvent(t, enums.EventCustodyCancelled, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	resolver := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dispatcher := newTestDispatcher(t, repo, &fakePublisher{}, resolver, dlq, nil)

	if _, err := dispatcher.dispatchBatch(context.Background()); err != nil {
		t.Fatalf("dispatch batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestDispatchBatchDeadLettersOnMaxAttempts(t *testing.T) {
	event := custodyEvent(t, enums.EventCustodyReturnInitiated, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlq := &fakeDLQRepo{}
	dispatcher := newTestDispatcher(t, repo, pub, &fakeRegistry{resolved: signedResolution()}, dlq, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := dispatcher.dispatchBatch(context.Background()); err != nil {
		t.Fatalf("dispatch batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlq.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal rows must not also be marked failed")
	}
}

func TestDispatchBatchMissingPublisherIsTerminal(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{custodyEvent(t, enums.EventCustodyRecordCreated, 0)}}
	dlq := &fakeDLQRepo{}
	dispatcher := newTestDispatcher(t, repo, nil, &fakeRegistry{resolved: signedResolution()}, dlq, nil)
	dispatcher.publishers = func(string) publisher { return nil }

	if _, err := dispatcher.dispatchBatch(context.Background()); err != nil {
		t.Fatalf("dispatch batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dead letter, got %+v", dlq.entries)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(0, time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s got %s", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap at 10s got %s", got)
	}
}

func newTestDispatcher(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, override *config.OutboxConfig) *Dispatcher {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	dispatcher, err := NewDispatcher(DispatcherParams{
		Outbox:           outboxCfg,
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		DLQ:              dlq,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return pub },
	})
	if err != nil {
		t.Fatalf("failed to construct dispatcher: %v", err)
	}
	return dispatcher
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeRecorder struct {
	settled []string
	lags    []time.Duration
}

func (f *fakeRecorder) ObserveSettled(eventType, outcome string) {
	f.settled = append(f.settled, eventType+"/"+outcome)
}

func (f *fakeRecorder) ObserveDeliveryLag(lag time.Duration) {
	f.lags = append(f.lags, lag)
}
