/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron          *cron.Cron
	jobs          *Jobs
	logger        *zap.Logger
	statsSchedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *zap.Logger, statsSchedule string) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.With(zap.String("component", "cron"))))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:          c,
		jobs:          jobs,
		logger:        logger.With(zap.String("component", "scheduler")),
		statsSchedule: strings.TrimSpace(statsSchedule),
	}
}

// Start registers the jobs and starts the cron scheduler. An empty schedule
// disables the stats job.
func (s *Scheduler) Start() {
	if s.statsSchedule == "" {
		s.logger.Info("member stats job disabled")
	} else if _, err := s.cron.AddFunc(s.statsSchedule, s.jobs.ReportMemberStats); err != nil {
		s.logger.Error("failed to schedule member stats job", zap.Error(err))
	} else {
		s.logger.Info("scheduled member stats job", zap.String("schedule", s.statsSchedule))
	}

	s.cron.Start()
}

// AddJob registers an extra named job. It must be called before Start.
func (s *Scheduler) AddJob(name, schedule string, fn func()) error {
	if _, err := s.cron.AddFunc(schedule, fn); err != nil {
		s.logger.Error("failed to schedule job", zap.String("job", name), zap.Error(err))
		return err
	}
	s.logger.Info("scheduled job", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
