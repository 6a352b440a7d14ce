package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"lighting-control-backend/internal/model"
	"lighting-control-backend/internal/scheduler"
	"lighting-control-backend/internal/store"
)

// ActionExecutionError wraps any channel-level failure raised from within a
// scheduled action, so sweep loops can distinguish a failed action from their
// own bookkeeping errors.
type ActionExecutionError struct {
	Key  string
	Path string
	Err  error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s failed via %s: %v", e.Key, e.Path, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// Switcher is the slice of the device channel the executor drives.
type Switcher interface {
	Apply(ctx context.Context, channel int, on bool) error
}

// Executor performs one physical channel action and records an event-log
// entry for every attempt outcome, successful or not.
type Executor struct {
	channel     Switcher
	store       store.Store
	maxAttempts int
}

// New creates an executor. maxAttempts bounds the device command retries per
// action (exponential backoff between attempts).
func New(channel Switcher, st store.Store, maxAttempts int) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Executor{channel: channel, store: st, maxAttempts: maxAttempts}
}

// Execute drives the device and appends the event-log entry. It implements
// scheduler.Executor.
func (e *Executor) Execute(ctx context.Context, job scheduler.Job, path string) error {
	on := job.Key.Action.On()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		return e.channel.Apply(ctx, job.Key.ChannelID, on)
	}, policy)

	entry := &model.EventLogEntry{
		ScheduleID:    job.Key.ScheduleID,
		ChannelID:     job.Key.ChannelID,
		Action:        string(job.Key.Action),
		Success:       err == nil,
		ExecutionPath: path,
		Timestamp:     time.Now().UTC(),
	}
	if err != nil {
		entry.Result = err.Error()
	} else {
		entry.Result = "ok"
	}

	if logErr := e.store.AppendEventLog(ctx, entry); logErr != nil {
		// The action outcome stands; losing the audit record is logged
		// but does not turn a successful switch into a failure.
		log.Printf("executor: failed to append event log for %s: %v", job.Key, logErr)
	}

	if err != nil {
		return &ActionExecutionError{Key: job.Key.String(), Path: path, Err: err}
	}
	return nil
}
