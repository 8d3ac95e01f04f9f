// Package scheduler runs the batch sweep on a cron schedule
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/simaogato/lnmomo-backend/internal/usecase/sweep"
)

// Runner is the sweep the scheduler triggers
type Runner interface {
	Run(ctx context.Context) (*sweep.Report, error)
}

// Sweeper triggers Runner on a schedule. A tick that fires while the previous
// sweep is still running is skipped.
type Sweeper struct {
	runner  Runner
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	running atomic.Bool
	skipped atomic.Int64
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSweeper parses schedule ("@every 30s", "*/1 * * * *", ...) and prepares the job.
// timeout bounds a single sweep; zero leaves it unbounded.
func NewSweeper(runner Runner, schedule string, timeout time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		runner:  runner,
		cron:    cron.New(),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	if _, err := s.cron.AddFunc(schedule, s.Tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins firing on schedule
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweep scheduler started", "next_run", s.next())
}

// Stop halts the schedule, cancels a running sweep and waits for it to return
func (s *Sweeper) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Skipped returns how many ticks were dropped because a sweep was running
func (s *Sweeper) Skipped() int64 {
	return s.skipped.Load()
}

// Tick runs one sweep unless one is already in progress
func (s *Sweeper) Tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous sweep still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
		return
	}
	if report.ChangedCount > 0 || report.FailedCount > 0 {
		s.logger.Info("scheduled sweep",
			"processed", report.ProcessedCount,
			"changed", report.ChangedCount,
			"failed", report.FailedCount,
		)
	}
}

func (s *Sweeper) next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
