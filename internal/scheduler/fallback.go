package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"lighting-control-backend/internal/model"
)

// FallbackBackend schedules jobs with in-process timers. It carries the same
// surface as the durable backend and is used whenever that backend is
// unreachable. Pending timers do not survive a process restart; the startup
// reconciliation re-creates them. This is an accepted limitation.
type FallbackBackend struct {
	exec Executor

	mu     sync.Mutex
	timers map[string]*fallbackTimer
}

type fallbackTimer struct {
	job   Job
	timer *time.Timer
}

// NewFallbackBackend creates an empty timer backend.
func NewFallbackBackend(exec Executor) *FallbackBackend {
	return &FallbackBackend{
		exec:   exec,
		timers: make(map[string]*fallbackTimer),
	}
}

// ScheduleAction cancels any timer armed for the same key, then arms a
// one-shot timer for the remaining delay. A delay that has already elapsed
// executes immediately.
func (b *FallbackBackend) ScheduleAction(ctx context.Context, job Job) error {
	key := job.Key.String()
	delay := time.Until(job.Target)

	b.mu.Lock()
	if existing, ok := b.timers[key]; ok {
		existing.timer.Stop()
		delete(b.timers, key)
	}
	if delay <= 0 {
		b.mu.Unlock()
		b.execute(ctx, job)
		return nil
	}
	ft := &fallbackTimer{job: job}
	ft.timer = time.AfterFunc(delay, func() { b.fire(key) })
	b.timers[key] = ft
	b.mu.Unlock()
	return nil
}

// Cancel disarms a pending timer by key.
func (b *FallbackBackend) Cancel(_ context.Context, key JobKey) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ft, ok := b.timers[key.String()]
	if !ok {
		return false, nil
	}
	ft.timer.Stop()
	delete(b.timers, key.String())
	return true, nil
}

// ListPending returns the currently armed timers.
func (b *FallbackBackend) ListPending(_ context.Context) ([]PendingJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := make([]PendingJob, 0, len(b.timers))
	for _, ft := range b.timers {
		pending = append(pending, PendingJob{
			Key:    ft.job.Key,
			Target: ft.job.Target,
			State:  StatePending,
		})
	}
	return pending, nil
}

// Stop disarms every pending timer.
func (b *FallbackBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, ft := range b.timers {
		ft.timer.Stop()
		delete(b.timers, key)
	}
}

func (b *FallbackBackend) fire(key string) {
	b.mu.Lock()
	ft, ok := b.timers[key]
	if ok {
		delete(b.timers, key)
	}
	b.mu.Unlock()
	if !ok {
		// Cancelled between firing and acquiring the lock.
		return
	}
	b.execute(context.Background(), ft.job)
}

func (b *FallbackBackend) execute(ctx context.Context, job Job) {
	if err := b.exec.Execute(ctx, job, model.PathFallback); err != nil {
		log.Printf("scheduler: fallback execution of %s failed: %v", job.Key, err)
	}
}
