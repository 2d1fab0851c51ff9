// Package scheduler runs the periodic full sync on a cron schedule.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler wraps a single cron job.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
}

// New creates a scheduler that runs job on the given cron schedule. The
// schedule uses the standard five-field format.
func New(schedule string, job func()) (*Scheduler, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		cron:     c,
		schedule: schedule,
	}, nil
}

// Start begins running the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("schedule", s.schedule).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Scheduler stopped")
}

// Schedule returns the configured cron expression.
func (s *Scheduler) Schedule() string {
	return s.schedule
}
