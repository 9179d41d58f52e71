// Package scheduler runs scheduled transfers once they are due. A poller
// finds due transfers and queues one job each; a fixed pool of workers
// claims and executes the jobs with bounded retries.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/prenos/internal/backoff"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
	"github.com/erazemk/prenos/internal/transfer"
)

// Executor runs a due transfer. *transfer.Service implements it.
type Executor interface {
	ExecuteScheduled(ctx context.Context, id int64) (*model.Transfer, error)
}

// Config tunes the scheduler. Zero values select the defaults.
type Config struct {
	Interval    time.Duration // how often due transfers are looked up
	Workers     int
	MaxAttempts int
	Backoff     time.Duration // base of the exponential retry delay
	Lease       time.Duration // how long a claimed job is reserved
	Idle        time.Duration // worker sleep when no job is due
}

// Defaults.
const (
	DefaultInterval    = 5 * time.Minute
	DefaultWorkers     = 4
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
	DefaultLease       = 10 * time.Minute
	DefaultIdle        = time.Second
)

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.Lease <= 0 {
		c.Lease = DefaultLease
	}
	if c.Idle <= 0 {
		c.Idle = DefaultIdle
	}
}

// Scheduler owns the poller and the worker pool.
type Scheduler struct {
	db     *sql.DB
	exec   Executor
	cfg    Config
	logger *slog.Logger

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// New creates a scheduler. logger may be nil.
func New(database *sql.DB, exec Executor, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{db: database, exec: exec, cfg: cfg, logger: logger, Now: time.Now}
}

// Run polls and works until ctx is done. Jobs in flight when ctx ends are
// finished before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.poll(ctx) })
	for i := range s.cfg.Workers {
		g.Go(func() error { return s.work(ctx, i) })
	}

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "workers", s.cfg.Workers)
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("polling due transfers failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll queues a job for every approved transfer whose scheduled date has
// passed and returns to the queue jobs whose workers died. It returns the
// number of newly queued jobs.
func (s *Scheduler) Poll(ctx context.Context) (int, error) {
	now := s.Now()

	reclaimed, err := store.ReclaimExpiredJobs(ctx, s.db, now)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		s.logger.Warn("reclaimed expired jobs", "count", reclaimed)
	}

	due, err := store.ListDueTransfers(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, t := range due {
		ok, err := store.EnqueueJob(ctx, s.db, t.ID, s.cfg.MaxAttempts, now, now)
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
			s.logger.Info("scheduled transfer queued", "transfer", t.ID)
		}
	}
	return queued, nil
}

func (s *Scheduler) work(ctx context.Context, id int) error {
	logger := s.logger.With("worker", id)
	for {
		if ctx.Err() != nil {
			return nil
		}

		// A claimed job always runs to completion, shutdown or not.
		worked, err := s.RunOnce(context.WithoutCancel(ctx))
		if err != nil {
			logger.Error("processing job failed", "error", err)
		}
		if worked {
			continue
		}
		if err := backoff.Sleep(ctx, s.cfg.Idle); err != nil {
			return nil
		}
	}
}

// RunOnce claims and processes one due job. It reports whether a job was
// claimed.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	job, err := store.ClaimJob(ctx, s.db, s.Now(), s.cfg.Lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, s.process(ctx, job)
}

func (s *Scheduler) process(ctx context.Context, job *model.Job) error {
	logger := s.logger.With("job", job.ID, "transfer", job.TransferID, "attempt", job.Attempts)

	t, err := store.GetTransfer(ctx, s.db, job.TransferID)
	if err != nil {
		return s.retry(ctx, job, err, logger)
	}
	if t == nil || t.Status != model.StatusApproved {
		status := "missing"
		if t != nil {
			status = string(t.Status)
		}
		logger.Warn("skipping job, transfer is not approved", "status", status)
		return store.CompleteJob(ctx, s.db, job.ID, s.Now())
	}

	if _, err := s.exec.ExecuteScheduled(ctx, t.ID); err != nil {
		if transfer.IsPermanent(err) {
			logger.Error("scheduled transfer failed permanently", "error", err)
			return store.FailJob(ctx, s.db, job.ID, err.Error(), s.Now())
		}
		return s.retry(ctx, job, err, logger)
	}

	logger.Info("scheduled transfer executed")
	return store.CompleteJob(ctx, s.db, job.ID, s.Now())
}

// retry puts job back in the queue after a jittered exponential delay, or
// fails it when no attempts are left.
func (s *Scheduler) retry(ctx context.Context, job *model.Job, cause error, logger *slog.Logger) error {
	now := s.Now()
	if job.Attempts >= job.MaxAttempts {
		logger.Error("scheduled transfer failed, no attempts left", "error", cause)
		return store.FailJob(ctx, s.db, job.ID, cause.Error(), now)
	}

	delay := backoff.FullJitter(backoff.Exponential(s.cfg.Backoff, job.Attempts-1))
	logger.Warn("scheduled transfer failed, retrying", "error", cause, "delay", delay)
	if err := store.RetryJob(ctx, s.db, job.ID, now.Add(delay), cause.Error(), now); err != nil {
		return fmt.Errorf("retrying job %d: %w", job.ID, err)
	}
	return nil
}
