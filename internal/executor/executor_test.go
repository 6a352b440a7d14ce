package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lighting-control-backend/internal/model"
	"lighting-control-backend/internal/scheduler"
)

// mockSwitcher is a mock implementation of the Switcher interface.
type mockSwitcher struct {
	mu       sync.Mutex
	calls    []bool // the "on" argument of each call
	failures int    // number of leading calls that fail
}

func (m *mockSwitcher) Apply(_ context.Context, _ int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, on)
	if len(m.calls) <= m.failures {
		return errors.New("device unreachable")
	}
	return nil
}

// mockStore records appended event-log entries.
type mockStore struct {
	mu      sync.Mutex
	entries []model.EventLogEntry
}

func (m *mockStore) ListActiveSchedules(context.Context) ([]model.ScheduleDefinition, error) {
	return nil, nil
}

func (m *mockStore) UpdateLastApplied(context.Context, int64, time.Time) error { return nil }

func (m *mockStore) AppendEventLog(_ context.Context, entry *model.EventLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockStore) DB() *gorm.DB { return nil }

func testJob(action scheduler.Action) scheduler.Job {
	return scheduler.Job{
		Key:    scheduler.JobKey{ChannelID: 2, ScheduleID: 7, Action: action},
		Target: time.Now(),
	}
}

func TestExecuteSuccessAppendsEventLog(t *testing.T) {
	sw := &mockSwitcher{}
	st := &mockStore{}
	exec := New(sw, st, 1)

	err := exec.Execute(context.Background(), testJob(scheduler.ActionOn), model.PathQueue)
	require.NoError(t, err)

	require.Len(t, sw.calls, 1)
	assert.True(t, sw.calls[0])

	require.Len(t, st.entries, 1)
	entry := st.entries[0]
	assert.Equal(t, int64(7), entry.ScheduleID)
	assert.Equal(t, 2, entry.ChannelID)
	assert.Equal(t, "on", entry.Action)
	assert.True(t, entry.Success)
	assert.Equal(t, "ok", entry.Result)
	assert.Equal(t, model.PathQueue, entry.ExecutionPath)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestExecuteFailureAppendsErrorEntry(t *testing.T) {
	sw := &mockSwitcher{failures: 10}
	st := &mockStore{}
	exec := New(sw, st, 1)

	err := exec.Execute(context.Background(), testJob(scheduler.ActionOff), model.PathFallback)

	var execErr *ActionExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "ch:2:sched:7:off", execErr.Key)
	assert.Equal(t, model.PathFallback, execErr.Path)

	require.Len(t, st.entries, 1)
	entry := st.entries[0]
	assert.False(t, entry.Success)
	assert.Contains(t, entry.Result, "device unreachable")
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	// First attempt fails, the retry succeeds; only one (successful)
	// event-log entry is written.
	sw := &mockSwitcher{failures: 1}
	st := &mockStore{}
	exec := New(sw, st, 3)

	err := exec.Execute(context.Background(), testJob(scheduler.ActionOn), model.PathQueueForced)
	require.NoError(t, err)

	assert.Len(t, sw.calls, 2)
	require.Len(t, st.entries, 1)
	assert.True(t, st.entries[0].Success)
}
