package scheduler

import (
	"context"
	"errors"
)

// ErrBackendUnavailable marks durable-backend connectivity failures. It is
// handled inside the façade by degrading to the fallback backend and is never
// surfaced to callers.
var ErrBackendUnavailable = errors.New("durable scheduling backend unavailable")

// Executor performs one physical channel action and records the outcome.
// Implemented by the action executor; backends call it when a job comes due.
type Executor interface {
	Execute(ctx context.Context, job Job, path string) error
}

// Backend is the common surface of the durable queue scheduler and the
// in-process timer fallback.
type Backend interface {
	// ScheduleAction submits a job, replacing any pending job with the
	// same key.
	ScheduleAction(ctx context.Context, job Job) error
	// Cancel removes a pending job by key and reports whether one existed.
	Cancel(ctx context.Context, key JobKey) (bool, error)
	// ListPending returns all not-yet-executed jobs.
	ListPending(ctx context.Context) ([]PendingJob, error)
}
