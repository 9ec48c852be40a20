package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// outcome is what happened to a single outbox row in a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

func (o outcome) String() string {
	switch o {
	case outcomePublished:
		return "published"
	case outcomeRetry:
		return "retry"
	case outcomeDeadLettered:
		return "dead_lettered"
	}
	return "unknown"
}

type settleRecorder interface {
	ObserveSettled(eventType, outcome string)
	ObserveDeliveryLag(lag time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSettled(string, string)    {}
func (nopRecorder) ObserveDeliveryLag(time.Duration) {}

type settledEvent struct {
	eventType enums.OutboxEventType
	result    outcome
	lag       time.Duration
}

type DispatcherParams struct {
	Outbox           config.OutboxConfig
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	DLQ              dlqRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          settleRecorder
	Clock            func() time.Time
}

// Dispatcher drains custody outbox rows to Pub/Sub. Rows that cannot be
// decoded or exhaust their attempts move to the dead-letter table.
type Dispatcher struct {
	logg         *logger.Logger
	db           dbClient
	pubsub       pubSubClient
	repo         outboxRepository
	dlq          dlqRepository
	registry     registryResolver
	publishers   publisherFactory
	metrics      settleRecorder
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	batch := params.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	var recorder settleRecorder = nopRecorder{}
	if params.Metrics != nil {
		recorder = params.Metrics
	}

	return &Dispatcher{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		dlq:          params.DLQ,
		registry:     params.Registry,
		publishers:   factory,
		metrics:      recorder,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		now:          clock,
	}, nil
}

// Run polls until ctx is cancelled. Batch errors back off exponentially.
func (d *Dispatcher) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": d.db.Ping,
		"pubsub":   d.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			d.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := d.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			d.logg.Info(ctx, "outbox dispatcher context canceled")
			return err
		}

		drained, err := d.dispatchBatch(ctx)
		switch {
		case err != nil:
			d.logg.Error(ctx, "outbox dispatch batch failed", err)
			backoff = nextBackoff(backoff, d.pollInterval, maxBackoff)
		case drained:
			backoff = d.pollInterval
			continue
		default:
			backoff = d.pollInterval
		}

		if err := sleep(ctx, withJitter(backoff)); err != nil {
			return err
		}
	}
}

// dispatchBatch locks one batch of rows and settles each one. It reports
// whether any rows were found. Metrics are recorded only once the batch
// transaction has committed.
func (d *Dispatcher) dispatchBatch(ctx context.Context) (bool, error) {
	var settled []settledEvent
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		settled = settled[:0]
		events, err := d.repo.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return err
		}
		for _, event := range events {
			result, lag, err := d.settle(ctx, tx, event)
			if err != nil {
				return err
			}
			settled = append(settled, settledEvent{eventType: event.EventType, result: result, lag: lag})
		}
		return nil
	})
	if err != nil || len(settled) == 0 {
		return len(settled) > 0, err
	}

	counts := map[outcome]int{}
	for _, ev := range settled {
		counts[ev.result]++
		d.metrics.ObserveSettled(string(ev.eventType), ev.result.String())
		if ev.result == outcomePublished {
			d.metrics.ObserveDeliveryLag(ev.lag)
		}
	}
	d.logg.Debug(d.logg.WithFields(ctx, map[string]any{
		"batch_size":    len(settled),
		"published":     counts[outcomePublished],
		"retrying":      counts[outcomeRetry],
		"dead_lettered": counts[outcomeDeadLettered],
	}), "outbox batch settled")
	return true, nil
}

func (d *Dispatcher) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, time.Duration, error) {
	ctx = d.logg.WithCustodyRecord(ctx, event.AggregateID.String())

	resolved, err := d.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, 0, d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = d.logg.WithFields(ctx, eventFields(event, resolved))

	err = d.publish(ctx, event, resolved)
	if err == nil {
		if markErr := d.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return outcomePublished, 0, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		d.logg.Info(ctx, "outbox event published")
		var lag time.Duration
		if occurred := resolved.Envelope.OccurredAt; !occurred.IsZero() {
			lag = d.now().Sub(occurred)
		}
		return outcomePublished, lag, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeDeadLettered, 0, d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	if event.AttemptCount+1 >= d.maxAttempts {
		return outcomeDeadLettered, 0, d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err))
	}

	d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
		"attempt_count": event.AttemptCount + 1,
		"error":         err.Error(),
	}), "outbox publish failed")
	if markErr := d.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return outcomeRetry, 0, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return outcomeRetry, 0, nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
		"outbox_id":    event.ID.String(),
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event dead-lettered")

	entry := models.DeadLetter(event, reason, cause, d.now())
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := d.repo.MarkTerminalTx(tx, event.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := d.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":          resolved.Envelope.EventID,
			"event_type":        string(event.EventType),
			"aggregate_type":    string(event.AggregateType),
			"custody_record_id": event.AggregateID.String(),
			"occurred_at":       resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	// Subscribers filter on the resulting status without decoding the body.
	if status, ok := event.EventType.ResultingStatus(); ok {
		msg.Attributes["custody_status"] = status.String()
	}
	if actor := resolved.Envelope.Actor; actor != nil {
		msg.Attributes["channel"] = string(actor.Channel)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"event_id":      resolved.Envelope.EventID,
		"topic":         resolved.Descriptor.Topic,
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{p: p}
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{
		result:      g.p.Publish(ctx, msg),
		publisher:   g.p,
		orderingKey: msg.OrderingKey,
	}
}

type gcpPublishResult struct {
	result      *gcppubsub.PublishResult
	publisher   *gcppubsub.Publisher
	orderingKey string
}

// Get waits for the server ack. A failed ordered publish pauses its key, so
// the key is resumed before the row is retried.
func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.result == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.result.Get(ctx)
	if err != nil && r.orderingKey != "" {
		r.publisher.ResumePublish(r.orderingKey)
	}
	return id, err
}
