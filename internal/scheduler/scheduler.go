package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lighting-control-backend/config"
)

// Mode selects which backend currently serves scheduling calls.
type Mode int

const (
	// ModeDurable routes to the Redis-backed queue.
	ModeDurable Mode = iota
	// ModeFallback routes to in-process timers while the durable backend
	// is unreachable.
	ModeFallback
)

func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "durable"
}

// Scheduler is the façade in front of both backends. It owns the mode state,
// and its Run loop is the single goroutine driving every sweep tick, so no
// two timers ever touch queue state concurrently.
type Scheduler struct {
	cfg      config.SchedulerConfig
	durable  *RedisBackend
	fallback *FallbackBackend

	mu   sync.RWMutex
	mode Mode
}

// New creates a scheduler starting in durable mode. The first health tick
// (or the first failing call) degrades it if Redis is down.
func New(cfg config.SchedulerConfig, durable *RedisBackend, fallback *FallbackBackend) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		durable:  durable,
		fallback: fallback,
		mode:     ModeDurable,
	}
}

// Mode returns the currently active backend mode.
func (s *Scheduler) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Scheduler) setMode(m Mode) {
	s.mu.Lock()
	changed := s.mode != m
	s.mode = m
	s.mu.Unlock()
	if changed {
		log.Printf("scheduler: switched to %s mode", m)
	}
}

// ScheduleAction submits a job for the deterministic key derived from
// channel, schedule and action. Durable-backend connectivity failures degrade
// transparently to the fallback; the caller still gets a handle.
func (s *Scheduler) ScheduleAction(ctx context.Context, channelID int, scheduleID int64, action Action, target time.Time) (JobHandle, error) {
	job := Job{
		Key:    JobKey{ChannelID: channelID, ScheduleID: scheduleID, Action: action},
		Target: target,
	}

	if s.Mode() == ModeDurable {
		err := s.durable.ScheduleAction(ctx, job)
		if err == nil {
			return s.handle(job), nil
		}
		if !errors.Is(err, ErrBackendUnavailable) {
			return JobHandle{}, err
		}
		log.Printf("scheduler: durable submit of %s failed, degrading: %v", job.Key, err)
		s.setMode(ModeFallback)
	}

	if err := s.fallback.ScheduleAction(ctx, job); err != nil {
		return JobHandle{}, err
	}
	return s.handle(job), nil
}

func (s *Scheduler) handle(job Job) JobHandle {
	return JobHandle{
		ID:     uuid.NewString(),
		Key:    job.Key.String(),
		Target: job.Target,
	}
}

// Cancel removes a job by key. The fallback map is always cleared too, so a
// timer armed during an outage cannot fire after recovery re-submits the key
// durably.
func (s *Scheduler) Cancel(ctx context.Context, key JobKey) bool {
	cancelled, _ := s.fallback.Cancel(ctx, key)

	if s.Mode() == ModeDurable {
		durableCancelled, err := s.durable.Cancel(ctx, key)
		if err != nil {
			log.Printf("scheduler: durable cancel of %s failed, degrading: %v", key, err)
			s.setMode(ModeFallback)
		} else {
			cancelled = cancelled || durableCancelled
		}
	}
	return cancelled
}

// ListPending returns the pending jobs of the active backend.
func (s *Scheduler) ListPending(ctx context.Context) ([]PendingJob, error) {
	if s.Mode() == ModeDurable {
		pending, err := s.durable.ListPending(ctx)
		if err == nil {
			return pending, nil
		}
		log.Printf("scheduler: durable list failed, degrading: %v", err)
		s.setMode(ModeFallback)
	}
	return s.fallback.ListPending(ctx)
}

// Run drives the sweep and health-check ticks until the context is
// cancelled. It is the only goroutine that mutates durable queue state.
func (s *Scheduler) Run(ctx context.Context) {
	overdue := time.NewTicker(s.cfg.OverdueInterval)
	promotion := time.NewTicker(s.cfg.PromotionInterval)
	health := time.NewTicker(s.cfg.HealthInterval)
	defer overdue.Stop()
	defer promotion.Stop()
	defer health.Stop()

	log.Printf("scheduler: run loop started (overdue %s, promotion %s, health %s)",
		s.cfg.OverdueInterval, s.cfg.PromotionInterval, s.cfg.HealthInterval)

	for {
		select {
		case <-ctx.Done():
			s.fallback.Stop()
			log.Println("scheduler: run loop stopped")
			return
		case <-promotion.C:
			if s.Mode() == ModeDurable {
				s.durable.PromoteDue(ctx)
			}
		case <-overdue.C:
			if s.Mode() == ModeDurable {
				s.durable.SweepOverdue(ctx)
			}
		case <-health.C:
			s.CheckHealth(ctx)
		}
	}
}

// CheckHealth probes the durable backend and flips the mode accordingly.
// While healthy it also reaps jobs stuck in the active state.
func (s *Scheduler) CheckHealth(ctx context.Context) {
	err := s.durable.Ping(ctx)
	switch {
	case err != nil && s.Mode() == ModeDurable:
		log.Printf("scheduler: durable backend unhealthy: %v", err)
		s.setMode(ModeFallback)
	case err == nil && s.Mode() == ModeFallback:
		log.Println("scheduler: durable backend recovered")
		s.setMode(ModeDurable)
	}

	if s.Mode() == ModeDurable {
		s.durable.ReapStalled(ctx)
	}
}
