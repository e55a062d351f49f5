// Package scheduler runs the periodic maintenance jobs of the service.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// runTimeout bounds one sweep.
const runTimeout = 30 * time.Second

// Finisher moves events whose end time has passed to FINISHED.
type Finisher interface {
	MarkFinished(ctx context.Context) (int64, error)
}

// Scheduler sweeps finished events every interval.
type Scheduler struct {
	s     gocron.Scheduler
	job   gocron.Job
	f     Finisher
	log   *slog.Logger
	total atomic.Int64
}

// New prepares the sweep job; nothing runs until Start.
func New(f Finisher, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if f == nil {
		return nil, errors.New("scheduler: nil finisher")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	sc := &Scheduler{s: s, f: f, log: logger.With("component", "scheduler")}
	sc.job, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(sc.sweep),
		gocron.WithName("finish-events"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("scheduler: add finish job: %w", err)
	}
	return sc, nil
}

func (sc *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	n, err := sc.f.MarkFinished(ctx)
	if err != nil {
		sc.log.Error("finish sweep failed", "err", err)
		return
	}
	sc.total.Add(n)
	if n > 0 {
		sc.log.Info("events finished", "count", n)
	}
}

// Start begins running the job in the background.
func (sc *Scheduler) Start() {
	sc.s.Start()
	sc.log.Info("scheduler started", "job", sc.job.Name())
}

// RunNow triggers a sweep outside the regular schedule.
func (sc *Scheduler) RunNow() error {
	return sc.job.RunNow()
}

// Finished is the number of events marked finished since New.
func (sc *Scheduler) Finished() int64 {
	return sc.total.Load()
}

// Shutdown stops the scheduler and waits for a running sweep.
func (sc *Scheduler) Shutdown() error {
	return sc.s.Shutdown()
}
