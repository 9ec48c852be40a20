package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

const (
	defaultEventRetention      = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
	defaultPruneBatch          = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Events      publishedEventPruner
	DeadLetters deadLetterPruner

	// Zero values fall back to 30 days, 90 days and 500 rows.
	EventRetention      time.Duration
	DeadLetterRetention time.Duration
	BatchSize           int
}

// NewOutboxRetentionJob prunes delivered custody events and old dead letters.
// Rows still waiting for delivery are never touched. DeadLetters may be nil
// to keep the DLQ forever.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:          params.Logger,
		db:            params.DB,
		events:        params.Events,
		deadLetters:   params.DeadLetters,
		eventTTL:      params.EventRetention,
		deadLetterTTL: params.DeadLetterRetention,
		batch:         params.BatchSize,
		now:           time.Now,
	}
	if job.eventTTL <= 0 {
		job.eventTTL = defaultEventRetention
	}
	if job.deadLetterTTL <= 0 {
		job.deadLetterTTL = defaultDeadLetterRetention
	}
	if job.batch <= 0 {
		job.batch = defaultPruneBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg          *logger.Logger
	db            txRunner
	events        publishedEventPruner
	deadLetters   deadLetterPruner
	eventTTL      time.Duration
	deadLetterTTL time.Duration
	batch         int
	now           func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	eventCutoff := now.Add(-j.eventTTL)
	events, err := j.prune(ctx, func(tx *gorm.DB) (int64, error) {
		return j.events.DeletePublishedBefore(ctx, tx, eventCutoff, j.batch)
	})
	if err != nil {
		return fmt.Errorf("prune published events: %w", err)
	}

	var deadLetters int64
	deadLetterCutoff := now.Add(-j.deadLetterTTL)
	if j.deadLetters != nil {
		deadLetters, err = j.prune(ctx, func(tx *gorm.DB) (int64, error) {
			return j.deadLetters.DeleteFailedBefore(ctx, tx, deadLetterCutoff, j.batch)
		})
		if err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"events_deleted":       events,
		"dead_letter_cutoff":   deadLetterCutoff,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention cleanup complete")
	return nil
}

// prune repeats one bounded delete per transaction until a batch comes back short.
func (j *outboxRetentionJob) prune(ctx context.Context, deleteBatch func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = deleteBatch(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			return total, nil
		}
	}
}
