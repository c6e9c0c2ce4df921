// Package jobs runs the scheduler's periodic background work on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// OccurrenceMaterializer refreshes the stored instances of recurring bookings.
type OccurrenceMaterializer interface {
	MaterializeOccurrences(ctx context.Context) (int, error)
}

// MaterializeJob is a cron.Job that keeps the occurrence table filled up to
// the configured horizon.
type MaterializeJob struct {
	ctx     context.Context
	target  OccurrenceMaterializer
	timeout time.Duration
	logger  *slog.Logger
	runs    atomic.Int64
}

var _ cron.Job = (*MaterializeJob)(nil)

// NewMaterializeJob builds a job bound to ctx; once ctx is done scheduled runs
// return immediately. A non-positive timeout leaves runs unbounded.
func NewMaterializeJob(ctx context.Context, target OccurrenceMaterializer, timeout time.Duration, logger *slog.Logger) *MaterializeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaterializeJob{ctx: ctx, target: target, timeout: timeout, logger: logger.With("job", "materialize_occurrences")}
}

// Run implements cron.Job.
func (j *MaterializeJob) Run() {
	if err := j.RunOnce(j.ctx); err != nil {
		j.logger.Error("occurrence materialization failed", "error", err)
	}
}

// RunOnce performs a single refresh.
func (j *MaterializeJob) RunOnce(ctx context.Context) error {
	if j.target == nil {
		return fmt.Errorf("materialize job has no target")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	refreshed, err := j.target.MaterializeOccurrences(ctx)
	j.runs.Add(1)
	if err != nil {
		return err
	}
	j.logger.Info("occurrences materialized", "bookings", refreshed, "duration", time.Since(start))
	return nil
}

// Runs reports how many refreshes have been attempted.
func (j *MaterializeJob) Runs() int64 {
	return j.runs.Load()
}
