package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"lighting-control-backend/config"
	"lighting-control-backend/internal/model"
)

// RedisBackend is the durable queue scheduler. Jobs live in Redis and survive
// process restarts: per action queue (ON and OFF) a delayed sorted set scored
// by target timestamp, an active sorted set scored by execution start, and a
// hash per job. Sweeps are driven externally by the scheduler façade's run
// loop, so exactly one goroutine mutates queue state.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
	cfg    config.SchedulerConfig
	exec   Executor
	clock  func() time.Time
}

// NewRedisBackend creates a durable backend on the given client. The client
// is owned by the caller.
func NewRedisBackend(rdb *redis.Client, prefix string, cfg config.SchedulerConfig, exec Executor) *RedisBackend {
	return &RedisBackend{
		rdb:    rdb,
		prefix: prefix,
		cfg:    cfg,
		exec:   exec,
		clock:  time.Now,
	}
}

// Ping probes backend liveness.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) queueKey(a Action) string   { return b.prefix + ":" + string(a) }
func (b *RedisBackend) delayedKey(a Action) string { return b.queueKey(a) + ":delayed" }
func (b *RedisBackend) activeKey(a Action) string  { return b.queueKey(a) + ":active" }
func (b *RedisBackend) jobKey(k JobKey) string {
	return b.queueKey(k.Action) + ":job:" + k.String()
}

// ScheduleAction removes any job sharing the key, then submits the job into
// the delayed set. A job due within the inline threshold is additionally
// executed synchronously and deleted, so it can never show up as overdue even
// if delayed-to-active promotion lags.
func (b *RedisBackend) ScheduleAction(ctx context.Context, job Job) error {
	if _, err := b.remove(ctx, job.Key); err != nil {
		return err
	}

	targetMS := job.Target.UnixMilli()
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.Key), map[string]interface{}{
		"channel_id":  job.Key.ChannelID,
		"schedule_id": job.Key.ScheduleID,
		"action":      string(job.Key.Action),
		"target_ms":   targetMS,
		"attempts":    b.cfg.MaxAttempts,
		"state":       StatePending,
	})
	pipe.ZAdd(ctx, b.delayedKey(job.Key.Action), redis.Z{
		Score:  float64(targetMS),
		Member: job.Key.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: submit %s: %v", ErrBackendUnavailable, job.Key, err)
	}

	delay := job.Target.Sub(b.clock())
	if delay < 0 {
		delay = 0
	}
	if delay <= b.cfg.InlineThreshold {
		b.executeAndRemove(ctx, job, model.PathQueueImmediate)
	}
	return nil
}

// Cancel removes a job by key from the delayed and active sets.
func (b *RedisBackend) Cancel(ctx context.Context, key JobKey) (bool, error) {
	return b.remove(ctx, key)
}

// ListPending returns delayed and active jobs across both action queues.
func (b *RedisBackend) ListPending(ctx context.Context) ([]PendingJob, error) {
	var pending []PendingJob
	for _, action := range []Action{ActionOn, ActionOff} {
		delayed, err := b.rdb.ZRangeWithScores(ctx, b.delayedKey(action), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: list delayed: %v", ErrBackendUnavailable, err)
		}
		for _, z := range delayed {
			key, err := ParseJobKey(z.Member.(string))
			if err != nil {
				continue
			}
			pending = append(pending, PendingJob{
				Key:    key,
				Target: time.UnixMilli(int64(z.Score)),
				State:  StatePending,
			})
		}

		activeMembers, err := b.rdb.ZRange(ctx, b.activeKey(action), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: list active: %v", ErrBackendUnavailable, err)
		}
		for _, member := range activeMembers {
			key, err := ParseJobKey(member)
			if err != nil {
				continue
			}
			target, ok := b.jobTarget(ctx, key)
			if !ok {
				continue
			}
			pending = append(pending, PendingJob{Key: key, Target: target, State: StateActive})
		}
	}
	return pending, nil
}

// SweepOverdue force-executes and removes every job whose target is more than
// the overdue threshold in the past, compensating for backend scheduling
// slippage. Returns the number of jobs executed.
func (b *RedisBackend) SweepOverdue(ctx context.Context) int {
	cutoff := b.clock().Add(-b.cfg.OverdueThreshold).UnixMilli()
	executed := 0
	for _, action := range []Action{ActionOn, ActionOff} {
		members, err := b.dueMembers(ctx, b.delayedKey(action), cutoff)
		if err != nil {
			log.Printf("scheduler: overdue sweep failed: %v", err)
			return executed
		}
		for _, member := range members {
			if b.forceExecute(ctx, member) {
				executed++
			}
		}

		// Active jobs are compared against their own target, not the
		// time they became active.
		activeMembers, err := b.rdb.ZRange(ctx, b.activeKey(action), 0, -1).Result()
		if err != nil {
			log.Printf("scheduler: overdue sweep failed: %v", err)
			return executed
		}
		for _, member := range activeMembers {
			key, err := ParseJobKey(member)
			if err != nil {
				continue
			}
			target, ok := b.jobTarget(ctx, key)
			if ok && target.UnixMilli() <= cutoff {
				if b.forceExecute(ctx, member) {
					executed++
				}
			}
		}
	}
	return executed
}

// PromoteDue moves delayed jobs due within the promotion horizon into the
// active set and executes them directly. Promotion alone is not guaranteed to
// be picked up in time, so executing here prevents missed firings, and the
// removal prevents duplicates.
func (b *RedisBackend) PromoteDue(ctx context.Context) int {
	horizon := b.clock().Add(b.cfg.PromotionHorizon).UnixMilli()
	executed := 0
	for _, action := range []Action{ActionOn, ActionOff} {
		members, err := b.dueMembers(ctx, b.delayedKey(action), horizon)
		if err != nil {
			log.Printf("scheduler: promotion sweep failed: %v", err)
			return executed
		}
		for _, member := range members {
			key, err := ParseJobKey(member)
			if err != nil {
				b.rdb.ZRem(ctx, b.delayedKey(action), member)
				continue
			}
			target, ok := b.jobTarget(ctx, key)
			if !ok {
				b.rdb.ZRem(ctx, b.delayedKey(action), member)
				continue
			}

			pipe := b.rdb.TxPipeline()
			pipe.ZRem(ctx, b.delayedKey(action), member)
			pipe.ZAdd(ctx, b.activeKey(action), redis.Z{
				Score:  float64(b.clock().UnixMilli()),
				Member: member,
			})
			pipe.HSet(ctx, b.jobKey(key), "state", StateActive)
			if _, err := pipe.Exec(ctx); err != nil {
				log.Printf("scheduler: failed to promote %s: %v", member, err)
				continue
			}

			job := Job{Key: key, Target: target}
			b.executeAndRemove(ctx, job, model.PathQueue)
			executed++
		}
	}
	return executed
}

// ReapStalled force-executes and clears jobs stuck in the active set beyond
// the stall threshold.
func (b *RedisBackend) ReapStalled(ctx context.Context) int {
	cutoff := b.clock().Add(-b.cfg.StalledAfter).UnixMilli()
	executed := 0
	for _, action := range []Action{ActionOn, ActionOff} {
		members, err := b.dueMembers(ctx, b.activeKey(action), cutoff)
		if err != nil {
			log.Printf("scheduler: stalled reap failed: %v", err)
			return executed
		}
		for _, member := range members {
			log.Printf("scheduler: job %s stalled in active state, force-executing", member)
			if b.forceExecute(ctx, member) {
				executed++
			}
		}
	}
	return executed
}

// dueMembers returns sorted-set members with score at or below max.
func (b *RedisBackend) dueMembers(ctx context.Context, setKey string, maxScore int64) ([]string, error) {
	members, err := b.rdb.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(maxScore, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return members, nil
}

func (b *RedisBackend) jobTarget(ctx context.Context, key JobKey) (time.Time, bool) {
	val, err := b.rdb.HGet(ctx, b.jobKey(key), "target_ms").Result()
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (b *RedisBackend) forceExecute(ctx context.Context, member string) bool {
	key, err := ParseJobKey(member)
	if err != nil {
		log.Printf("scheduler: dropping malformed queue member %q", member)
		b.removeMember(ctx, member)
		return false
	}
	target, ok := b.jobTarget(ctx, key)
	if !ok {
		target = b.clock()
	}
	b.executeAndRemove(ctx, Job{Key: key, Target: target}, model.PathQueueForced)
	return true
}

// executeAndRemove runs the action and deletes the job. Execution failures
// are already recorded in the event log by the executor; the job is removed
// either way so a broken device cannot pile up retries of stale actions.
func (b *RedisBackend) executeAndRemove(ctx context.Context, job Job, path string) {
	if err := b.exec.Execute(ctx, job, path); err != nil {
		log.Printf("scheduler: execution of %s via %s failed: %v", job.Key, path, err)
	}
	if _, err := b.remove(ctx, job.Key); err != nil {
		log.Printf("scheduler: failed to remove executed job %s: %v", job.Key, err)
	}
}

func (b *RedisBackend) removeMember(ctx context.Context, member string) {
	for _, action := range []Action{ActionOn, ActionOff} {
		b.rdb.ZRem(ctx, b.delayedKey(action), member)
		b.rdb.ZRem(ctx, b.activeKey(action), member)
	}
}

// remove deletes the job hash and both set memberships for a key. Removal
// always precedes re-submission, keeping cancel-then-resubmit atomic from the
// caller's perspective.
func (b *RedisBackend) remove(ctx context.Context, key JobKey) (bool, error) {
	member := key.String()
	pipe := b.rdb.TxPipeline()
	delayed := pipe.ZRem(ctx, b.delayedKey(key.Action), member)
	active := pipe.ZRem(ctx, b.activeKey(key.Action), member)
	hash := pipe.Del(ctx, b.jobKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%w: remove %s: %v", ErrBackendUnavailable, key, err)
	}
	return delayed.Val()+active.Val()+hash.Val() > 0, nil
}
