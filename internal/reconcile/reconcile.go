package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"lighting-control-backend/config"
	"lighting-control-backend/internal/model"
	"lighting-control-backend/internal/scheduler"
	"lighting-control-backend/internal/store"
)

// JobScheduler is the slice of the scheduler façade the reconciler drives.
type JobScheduler interface {
	ScheduleAction(ctx context.Context, channelID int, scheduleID int64, action scheduler.Action, target time.Time) (scheduler.JobHandle, error)
	Cancel(ctx context.Context, key scheduler.JobKey) bool
	ListPending(ctx context.Context) ([]scheduler.PendingJob, error)
}

// Result is the plan entry produced for one schedule definition.
type Result struct {
	ScheduleID   int64     `json:"scheduleId"`
	ChannelID    int       `json:"channelId"`
	OnTimestamp  time.Time `json:"onTimestamp"`
	OffTimestamp time.Time `json:"offTimestamp"`
}

// Service recomputes every active schedule's next ON/OFF occurrence and
// re-submits the jobs: at startup (after a settle delay), at the daily
// boundary, and — independently of queue state — via a minute-granularity
// direct-execution sweep that cross-checks the wall clock.
type Service struct {
	cfg   config.ReconcileConfig
	store store.Store
	sched JobScheduler
	exec  scheduler.Executor
	loc   *time.Location
	clock func() time.Time
}

// NewService creates the reconciliation service in the configured timezone.
func NewService(cfg config.ReconcileConfig, st store.Store, sched JobScheduler, exec scheduler.Executor) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	return &Service{
		cfg:   cfg,
		store: st,
		sched: sched,
		exec:  exec,
		loc:   loc,
		clock: time.Now,
	}, nil
}

// Run blocks until the context is cancelled: it fires the startup
// reconciliation after the settle delay, then keeps the daily boundary and
// the direct-execution sweep running on a cron schedule.
func (s *Service) Run(ctx context.Context) {
	select {
	case <-time.After(s.cfg.StartupDelay):
		if _, err := s.ReconcileAll(ctx); err != nil {
			log.Printf("reconcile: startup run failed: %v", err)
		}
	case <-ctx.Done():
		return
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.cfg.BoundarySpec, func() {
		if _, err := s.ReconcileAll(context.Background()); err != nil {
			log.Printf("reconcile: boundary run failed: %v", err)
		}
	}); err != nil {
		log.Printf("reconcile: invalid boundary spec %q: %v", s.cfg.BoundarySpec, err)
	}
	if s.cfg.DirectSweepEnabled == nil || *s.cfg.DirectSweepEnabled {
		if _, err := c.AddFunc("* * * * *", func() {
			s.DirectSweep(context.Background())
		}); err != nil {
			log.Printf("reconcile: failed to install direct sweep: %v", err)
		}
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	log.Println("reconcile: service stopped")
}

// ReconcileAll loads all active definitions, cancels every previously
// submitted job, submits fresh ON/OFF jobs for each definition and records
// lastAppliedAt. Definitions with invalid times are skipped, not fatal.
func (s *Service) ReconcileAll(ctx context.Context) ([]Result, error) {
	defs, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	if pending, err := s.sched.ListPending(ctx); err != nil {
		log.Printf("reconcile: could not list pending jobs for cancellation: %v", err)
	} else {
		for _, p := range pending {
			s.sched.Cancel(ctx, p.Key)
		}
	}

	now := s.clock().In(s.loc)
	results := make([]Result, 0, len(defs))
	for _, def := range defs {
		if !def.ValidTimes() {
			log.Printf("reconcile: schedule %d has out-of-range times, skipping", def.ID)
			continue
		}

		onAt, offAt := NextOccurrences(now, def.OnHour, def.OnMinute, def.OffHour, def.OffMinute)

		if _, err := s.sched.ScheduleAction(ctx, def.ChannelID, def.ID, scheduler.ActionOn, onAt); err != nil {
			log.Printf("reconcile: failed to submit ON job for schedule %d: %v", def.ID, err)
			continue
		}
		if _, err := s.sched.ScheduleAction(ctx, def.ChannelID, def.ID, scheduler.ActionOff, offAt); err != nil {
			log.Printf("reconcile: failed to submit OFF job for schedule %d: %v", def.ID, err)
			continue
		}

		if err := s.store.UpdateLastApplied(ctx, def.ID, now); err != nil {
			log.Printf("reconcile: failed to update last_applied_at for schedule %d: %v", def.ID, err)
		}

		results = append(results, Result{
			ScheduleID:   def.ID,
			ChannelID:    def.ChannelID,
			OnTimestamp:  onAt,
			OffTimestamp: offAt,
		})
	}

	log.Printf("reconcile: applied %d of %d active schedules", len(results), len(defs))
	return results, nil
}

// DirectSweep compares the current wall-clock hour and minute against every
// active definition and executes exact matches directly, regardless of any
// queued job's state. It is the last-resort guarantee when both queue
// backends misbehave.
func (s *Service) DirectSweep(ctx context.Context) {
	defs, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		log.Printf("reconcile: direct sweep could not load schedules: %v", err)
		return
	}

	now := s.clock().In(s.loc)
	hour, minute := now.Hour(), now.Minute()
	for _, def := range defs {
		if def.OnHour == hour && def.OnMinute == minute {
			s.directExecute(ctx, def, scheduler.ActionOn, now)
		}
		if def.OffHour == hour && def.OffMinute == minute {
			s.directExecute(ctx, def, scheduler.ActionOff, now)
		}
	}
}

func (s *Service) directExecute(ctx context.Context, def model.ScheduleDefinition, action scheduler.Action, now time.Time) {
	job := scheduler.Job{
		Key:    scheduler.JobKey{ChannelID: def.ChannelID, ScheduleID: def.ID, Action: action},
		Target: now,
	}
	if err := s.exec.Execute(ctx, job, model.PathDirectSweep); err != nil {
		log.Printf("reconcile: direct execution of %s failed: %v", job.Key, err)
	}
}

// NextOccurrences computes the next ON and OFF occurrence for a daily
// schedule: today's time-of-day if still in the future, else tomorrow's. An
// OFF occurrence that would land before the ON occurrence is pushed one more
// day forward — the schedule spans midnight.
func NextOccurrences(now time.Time, onHour, onMinute, offHour, offMinute int) (time.Time, time.Time) {
	onAt := nextDaily(now, onHour, onMinute)
	offAt := nextDaily(now, offHour, offMinute)
	if offAt.Before(onAt) {
		offAt = offAt.AddDate(0, 0, 1)
	}
	return onAt, offAt
}

func nextDaily(now time.Time, hour, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
