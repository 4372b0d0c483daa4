package infra

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs recurring jobs and one-shot deferred tasks on one cron runner
type Scheduler struct {
	cron   *cron.Cron
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
}

// NewScheduler creates a new scheduler; cron specs include a seconds field
func NewScheduler(log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.PrintfLogger(&log))),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers a recurring job under a name used in logs
func (s *Scheduler) Every(spec, name string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			return
		}
		s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job finished")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("job", name).Str("spec", spec).Msg("job registered")
	return nil
}

// onceSchedule fires a single time at a fixed instant
type onceSchedule struct {
	at     time.Time
	issued bool
}

// Next returns the firing time on the first call and the zero time after,
// which cron treats as never run again
func (o *onceSchedule) Next(time.Time) time.Time {
	if o.issued {
		return time.Time{}
	}
	o.issued = true
	return o.at
}

// ScheduleAfter runs task once, d from now. Pending tasks are dropped on Stop.
func (s *Scheduler) ScheduleAfter(d time.Duration, task func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id cron.EntryID
	id = s.cron.Schedule(&onceSchedule{at: time.Now().Add(d)}, cron.FuncJob(func() {
		s.mu.Lock()
		s.cron.Remove(id)
		s.mu.Unlock()

		if s.ctx.Err() != nil {
			return
		}
		task(s.ctx)
	}))
}

// Pending returns the number of registered entries, recurring and one-shot
func (s *Scheduler) Pending() int {
	return len(s.cron.Entries())
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs up to the timeout
func (s *Scheduler) Stop(timeout time.Duration) {
	s.log.Info().Msg("stopping scheduler")
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
	case <-time.After(timeout):
		s.log.Warn().Dur("timeout", timeout).Msg("scheduler stop timed out with jobs still running")
	}
}
