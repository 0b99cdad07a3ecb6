// File: internal/infra/sched/cleanup_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rollingpi/internal/infra/metrics"
)

// Sweeper deletes rows older than before and reports how many went.
type Sweeper interface {
	Sweep(ctx context.Context, before time.Time) (int64, error)
}

// SweepFunc adapts a function to Sweeper.
type SweepFunc func(ctx context.Context, before time.Time) (int64, error)

func (f SweepFunc) Sweep(ctx context.Context, before time.Time) (int64, error) { return f(ctx, before) }

// Job is one kind of stale row and its retention.
type Job struct {
	Kind    string
	MaxAge  time.Duration
	Sweeper Sweeper
}

// CleanupWorker periodically removes abandoned session links and payments
// that never reached an article.
type CleanupWorker struct {
	interval time.Duration
	jobs     []Job
	log      *zerolog.Logger

	now func() time.Time
}

func NewCleanupWorker(interval time.Duration, jobs []Job, logger *zerolog.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{interval: interval, jobs: jobs, log: &l, now: time.Now}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Int("jobs", len(w.jobs)).Msg("Starting cleanup worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every job. A failing job does not stop the others.
func (w *CleanupWorker) RunOnce(ctx context.Context) (deleted int64, err error) {
	now := w.now()
	for _, j := range w.jobs {
		n, jerr := j.Sweeper.Sweep(ctx, now.Add(-j.MaxAge))
		if jerr != nil {
			w.log.Error().Err(jerr).Str("kind", j.Kind).Msg("cleanup failed")
			if err == nil {
				err = jerr
			}
			continue
		}
		metrics.AddCleanupDeleted(j.Kind, n)
		deleted += n
		if n > 0 {
			w.log.Info().Str("kind", j.Kind).Int64("count", n).Msg("stale rows removed")
		}
	}
	if err != nil {
		metrics.IncCleanupRun("error")
	} else {
		metrics.IncCleanupRun("ok")
	}
	return deleted, err
}
