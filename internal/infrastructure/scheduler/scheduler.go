// Package scheduler runs named recurring jobs: fixed-interval jobs that fire
// immediately and then on every tick, and daily jobs firing at a fixed local
// time. Jobs are added and removed at runtime.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of scheduled work. The context is cancelled when the job
// is removed or the scheduler stops.
type Job func(ctx context.Context)

// Scheduler owns one goroutine per registered job.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New builds an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:   map[string]context.CancelFunc{},
		logger: logger,
	}
}

// AddInterval registers a job that runs immediately and then on every tick.
// Re-registering a name replaces the previous job.
func (s *Scheduler) AddInterval(ctx context.Context, name string, interval time.Duration, job Job) {
	jobCtx := s.register(ctx, name)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.run(jobCtx, name, job)
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				s.run(jobCtx, name, job)
			}
		}
	}()
}

// AddDaily registers a job firing at hour:minute in the given location, every
// day.
func (s *Scheduler) AddDaily(ctx context.Context, name string, hour, minute int, loc *time.Location, job Job) {
	jobCtx := s.register(ctx, name)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			wait := time.Until(nextDaily(time.Now(), hour, minute, loc))
			timer := time.NewTimer(wait)

			select {
			case <-jobCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.run(jobCtx, name, job)
			}
		}
	}()
}

// Remove cancels the named job; a no-op for unknown names.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.jobs[name]; ok {
		cancel()
		delete(s.jobs, name)
	}
}

// Has reports whether a job with the name is registered.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Stop cancels every job and waits for running invocations to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for name, cancel := range s.jobs {
		cancel()
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) register(ctx context.Context, name string) context.Context {
	jobCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		old()
	}
	s.jobs[name] = cancel
	s.mu.Unlock()

	return jobCtx
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	if ctx.Err() != nil {
		return
	}

	runID := uuid.NewString()
	started := time.Now()
	s.debug("job started", "job", name, "run_id", runID)

	job(ctx)

	s.debug("job finished", "job", name, "run_id", runID, "duration", time.Since(started))
}

// nextDaily returns the next occurrence of hour:minute in loc strictly after
// now.
func nextDaily(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (s *Scheduler) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
