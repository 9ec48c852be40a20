package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

const defaultLinkAuditWindow = 24 * time.Hour

type retiredLinkCounter interface {
	CountRetiredLinkTokens(ctx context.Context, since time.Time) (int64, error)
}

type LinkTokenAuditJobParams struct {
	Logger   *logger.Logger
	Counter  retiredLinkCounter
	Window   time.Duration
	Recorder func(count int64)
}

// NewLinkTokenAuditJob reports how many public links were retired within
// the window. History rows are kept so retired tokens are never reissued.
func NewLinkTokenAuditJob(params LinkTokenAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Counter == nil {
		return nil, fmt.Errorf("link token counter required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultLinkAuditWindow
	}
	return &linkTokenAuditJob{
		logg:     params.Logger,
		counter:  params.Counter,
		window:   window,
		recorder: params.Recorder,
		now:      time.Now,
	}, nil
}

type linkTokenAuditJob struct {
	logg     *logger.Logger
	counter  retiredLinkCounter
	window   time.Duration
	recorder func(count int64)
	now      func() time.Time
}

func (j *linkTokenAuditJob) Name() string { return "link-token-audit" }

func (j *linkTokenAuditJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.window)
	count, err := j.counter.CountRetiredLinkTokens(ctx, since)
	if err != nil {
		return fmt.Errorf("count retired link tokens: %w", err)
	}
	if j.recorder != nil {
		j.recorder(count)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"since":         since,
		"retired_links": count,
	})
	j.logg.Info(logCtx, "link token audit complete")
	return nil
}
