package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lighting-control-backend/internal/scheduler"
)

// stubScheduler returns canned values and records the last submission.
type stubScheduler struct {
	lastKey scheduler.JobKey
	pending []scheduler.PendingJob
}

func (s *stubScheduler) ScheduleAction(_ context.Context, channelID int, scheduleID int64, action scheduler.Action, target time.Time) (scheduler.JobHandle, error) {
	s.lastKey = scheduler.JobKey{ChannelID: channelID, ScheduleID: scheduleID, Action: action}
	return scheduler.JobHandle{ID: "job-1", Key: s.lastKey.String(), Target: target}, nil
}

func (s *stubScheduler) Cancel(_ context.Context, key scheduler.JobKey) bool {
	return key == s.lastKey
}

func (s *stubScheduler) ListPending(context.Context) ([]scheduler.PendingJob, error) {
	return s.pending, nil
}

func setupJobRouter(sched *stubScheduler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.Default()
	handler := NewHandler(sched, nil, nil, 8)
	r.POST("/api/jobs", handler.PostJob)
	r.DELETE("/api/jobs/:key", handler.DeleteJob)
	r.GET("/api/jobs", handler.GetJobs)
	return r
}

func TestPostJob(t *testing.T) {
	sched := &stubScheduler{}
	router := setupJobRouter(sched)

	w := httptest.NewRecorder()
	body := `{"channelId":3,"scheduleId":7,"action":"on","targetTimestamp":1749528000000}`
	req, _ := http.NewRequest("POST", "/api/jobs", strings.NewReader(body))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"ch:3:sched:7:on"`)
	assert.Equal(t, 3, sched.lastKey.ChannelID)
}

func TestPostJobValidation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "missing channel", body: `{"scheduleId":7,"action":"on","targetTimestamp":1}`},
		{name: "channel out of range", body: `{"channelId":8,"scheduleId":7,"action":"on","targetTimestamp":1}`},
		{name: "negative channel", body: `{"channelId":-1,"scheduleId":7,"action":"on","targetTimestamp":1}`},
		{name: "unknown action", body: `{"channelId":0,"scheduleId":7,"action":"toggle","targetTimestamp":1}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupJobRouter(&stubScheduler{})
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/jobs", strings.NewReader(tc.body))
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDeleteJob(t *testing.T) {
	sched := &stubScheduler{lastKey: scheduler.JobKey{ChannelID: 2, ScheduleID: 9, Action: scheduler.ActionOff}}
	router := setupJobRouter(sched)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/jobs/ch:2:sched:9:off", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":true}`, w.Body.String())
}

func TestDeleteJobBadKey(t *testing.T) {
	router := setupJobRouter(&stubScheduler{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/jobs/not-a-key", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobs(t *testing.T) {
	target := time.Date(2025, 6, 10, 22, 0, 0, 0, time.UTC)
	sched := &stubScheduler{pending: []scheduler.PendingJob{
		{
			Key:    scheduler.JobKey{ChannelID: 1, ScheduleID: 4, Action: scheduler.ActionOn},
			Target: target,
			State:  scheduler.StatePending,
		},
	}}
	router := setupJobRouter(sched)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/jobs", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"jobKey":"ch:1:sched:4:on","targetTimestamp":1749592800000,"state":"pending"}]`, w.Body.String())
}
