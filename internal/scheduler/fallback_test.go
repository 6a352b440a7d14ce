package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lighting-control-backend/internal/model"
)

// recordingExecutor captures executed jobs for assertions.
type recordingExecutor struct {
	mu    sync.Mutex
	calls []executedJob
}

type executedJob struct {
	job  Job
	path string
}

func (r *recordingExecutor) Execute(_ context.Context, job Job, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, executedJob{job: job, path: path})
	return nil
}

func (r *recordingExecutor) executed() []executedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]executedJob, len(r.calls))
	copy(out, r.calls)
	return out
}

func futureJob(channelID int, scheduleID int64, action Action, in time.Duration) Job {
	return Job{
		Key:    JobKey{ChannelID: channelID, ScheduleID: scheduleID, Action: action},
		Target: time.Now().Add(in),
	}
}

func TestFallbackRescheduleIsIdempotent(t *testing.T) {
	exec := &recordingExecutor{}
	b := NewFallbackBackend(exec)
	defer b.Stop()

	job := futureJob(1, 5, ActionOn, time.Hour)
	require.NoError(t, b.ScheduleAction(context.Background(), job))
	require.NoError(t, b.ScheduleAction(context.Background(), job))

	pending, err := b.ListPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, job.Key, pending[0].Key)
}

func TestFallbackExecutesImmediatelyWhenTargetPassed(t *testing.T) {
	exec := &recordingExecutor{}
	b := NewFallbackBackend(exec)
	defer b.Stop()

	job := futureJob(1, 5, ActionOff, -time.Second)
	require.NoError(t, b.ScheduleAction(context.Background(), job))

	calls := exec.executed()
	require.Len(t, calls, 1)
	assert.Equal(t, model.PathFallback, calls[0].path)

	pending, err := b.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFallbackTimerFires(t *testing.T) {
	exec := &recordingExecutor{}
	b := NewFallbackBackend(exec)
	defer b.Stop()

	job := futureJob(3, 9, ActionOn, 30*time.Millisecond)
	require.NoError(t, b.ScheduleAction(context.Background(), job))

	require.Eventually(t, func() bool {
		return len(exec.executed()) == 1
	}, time.Second, 5*time.Millisecond)

	calls := exec.executed()
	assert.Equal(t, job.Key, calls[0].job.Key)
	assert.Equal(t, model.PathFallback, calls[0].path)

	pending, err := b.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFallbackCancel(t *testing.T) {
	exec := &recordingExecutor{}
	b := NewFallbackBackend(exec)
	defer b.Stop()

	job := futureJob(2, 4, ActionOn, time.Hour)
	require.NoError(t, b.ScheduleAction(context.Background(), job))

	cancelled, err := b.Cancel(context.Background(), job.Key)
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = b.Cancel(context.Background(), job.Key)
	require.NoError(t, err)
	assert.False(t, cancelled)

	pending, err := b.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}
