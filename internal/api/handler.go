package api

import (
	"context"
	"time"

	"lighting-control-backend/internal/device"
	"lighting-control-backend/internal/reconcile"
	"lighting-control-backend/internal/scheduler"
)

// Scheduler is the job-submission surface the API exposes to collaborators.
type Scheduler interface {
	ScheduleAction(ctx context.Context, channelID int, scheduleID int64, action scheduler.Action, target time.Time) (scheduler.JobHandle, error)
	Cancel(ctx context.Context, key scheduler.JobKey) bool
	ListPending(ctx context.Context) ([]scheduler.PendingJob, error)
}

// Reconciler triggers a full schedule reconciliation on demand.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]reconcile.Result, error)
}

// Device is the diagnostic surface of the command channel.
type Device interface {
	ConnectionState() device.ConnectionState
	RequestStatus(ctx context.Context) (device.Status, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	sched        Scheduler
	recon        Reconciler
	dev          Device
	channelCount int
}

// NewHandler creates a new API handler. channelCount bounds the valid
// channel id range for job submission.
func NewHandler(sched Scheduler, recon Reconciler, dev Device, channelCount int) *Handler {
	return &Handler{
		sched:        sched,
		recon:        recon,
		dev:          dev,
		channelCount: channelCount,
	}
}
