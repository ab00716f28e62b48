// Package worker runs the notifier's periodic maintenance jobs and serves
// the ops endpoints.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one periodic task.
type Job struct {
	Name string
	// Schedule is a five-field cron expression or a descriptor such as
	// "@every 1m".
	Schedule string
	// Timeout bounds one run; zero means 5 minutes.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs Jobs on robfig/cron. A run that is still going when its
// next tick arrives causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(logger *slog.Logger, opts ...cron.Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	opts = append([]cron.Option{
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	}, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(opts...),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no Run func", job.Name)
	}
	if job.Timeout <= 0 {
		job.Timeout = 5 * time.Minute
	}
	_, err := s.cron.AddFunc(job.Schedule, func() { s.runOnce(job) })
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", job.Name, err)
	}
	s.logger.Info("cron job registered",
		slog.String("job", job.Name),
		slog.String("schedule", job.Schedule))
	return nil
}

func (s *Scheduler) runOnce(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	recordJob(job.Name, elapsed.Seconds(), err)

	if err != nil {
		s.logger.Error("cron job failed",
			slog.String("job", job.Name),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
		return
	}
	s.logger.Debug("cron job completed",
		slog.String("job", job.Name),
		slog.Duration("duration", elapsed))
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish. Jobs see their context cancelled on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	s.cancel()
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
