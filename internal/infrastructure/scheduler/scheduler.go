// Package scheduler runs cron jobs next to the room session: chat
// announcements, cooldown pruning and room gauges.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// errorBackoff is how long a job waits when its next tick cannot be computed.
const errorBackoff = 30 * time.Second

type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// RunObserver is told about every job run.
type RunObserver interface {
	RecordScheduledRun(job string, err error)
}

type Scheduler struct {
	jobs     []Job
	logger   *zap.SugaredLogger
	observer RunObserver

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	wg sync.WaitGroup
}

type Option func(*Scheduler)

func WithRunObserver(o RunObserver) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithClock replaces time.Now and time.After, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

func New(logger *zap.SugaredLogger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates the cron expression and queues the job for Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler job needs a name and a run function")
	}
	if !gronx.IsValid(job.Cron) {
		return fmt.Errorf("invalid cron expression for job %s: %q", job.Name, job.Cron)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) Len() int {
	return len(s.jobs)
}

// Start runs every job on its own goroutine until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	s.logger.Infow("Scheduler started", "jobs", len(s.jobs))
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		next, err := gronx.NextTickAfter(job.Cron, s.now(), false)
		wait := next.Sub(s.now())
		if err != nil {
			s.logger.Errorw("Failed to compute next tick", "job", job.Name, "cron", job.Cron, "error", err)
			wait = errorBackoff
		}

		select {
		case <-ctx.Done():
			s.logger.Debugw("Scheduler job stopping", "job", job.Name)
			return
		case <-s.after(wait):
		}
		if err != nil {
			continue
		}

		s.run(ctx, job)
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	start := s.now()
	err := job.Run(ctx)
	if s.observer != nil {
		s.observer.RecordScheduledRun(job.Name, err)
	}
	if err != nil {
		s.logger.Warnw("Scheduled job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Debugw("Scheduled job ran", "job", job.Name, "duration", s.now().Sub(start))
}
