package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Runner owns the cron scheduler. Overlapping runs of the same job are
// skipped and panics are recovered and logged.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewRunner builds a runner using the standard five field cron syntax.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	adapter := cronLogger{logger: logger.With("component", "cron")}
	c := cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	return &Runner{cron: c, logger: logger}
}

// Schedule registers job under spec, e.g. "@hourly" or "*/15 * * * *".
func (r *Runner) Schedule(spec string, job cron.Job) (cron.EntryID, error) {
	id, err := r.cron.AddJob(spec, job)
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}
	r.logger.Info("job scheduled", "spec", spec, "entry_id", id)
	return id, nil
}

// Len returns the number of scheduled entries.
func (r *Runner) Len() int {
	return len(r.cron.Entries())
}

// Start begins running scheduled jobs in the background.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
