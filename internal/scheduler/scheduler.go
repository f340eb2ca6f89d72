package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/internal/logger"
)

// Job is the unit of work a Scheduler triggers: one full ingestion run.
type Job func(ctx context.Context) error

// Scheduler fires the ingestion job on a cron expression, evaluated in UTC.
//
// Runs never overlap: a tick (or manual trigger) that arrives while a run is
// still executing is skipped, not queued. The run itself carries its own
// failure handling; the scheduler only logs the outcome.
type Scheduler struct {
	cron     *cron.Cron
	job      Job
	running  atomic.Bool
	inFlight sync.WaitGroup
	log      zerolog.Logger
}

// New validates the cron expression and prepares a stopped scheduler.
func New(spec string, job Job) (*Scheduler, error) {
	s := &Scheduler{job: job, log: logger.Component("scheduler")}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() { s.trigger("cron") }); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.cron = c
	s.log.Info().Str("cron", spec).Msg("schedule configured")
	return s, nil
}

// Start begins firing ticks. It returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop halts future ticks and blocks until an in-flight ingestion run has
// finished, so callers may safely close shared resources (the DB pool)
// afterwards.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.inFlight.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// TriggerNow starts a run outside the schedule, unless one is already in
// flight. It reports whether the run was started.
func (s *Scheduler) TriggerNow() bool {
	return s.trigger("manual")
}

// Running reports whether an ingestion run is currently executing.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) trigger(source string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Str("source", source).Msg("run already in flight, skipping")
		return false
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer s.running.Store(false)
		if err := s.job(context.Background()); err != nil {
			s.log.Error().Str("source", source).Err(err).Msg("scheduled run failed")
		}
	}()
	return true
}
