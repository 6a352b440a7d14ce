package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lighting-control-backend/internal/scheduler"
)

// scheduleActionRequest is the payload for POST /api/jobs.
type scheduleActionRequest struct {
	ChannelID       *int   `json:"channelId" binding:"required"`
	ScheduleID      int64  `json:"scheduleId" binding:"required"`
	Action          string `json:"action" binding:"required"`
	TargetTimestamp int64  `json:"targetTimestamp" binding:"required"` // epoch ms
}

// PostJob handles POST /api/jobs: submit one scheduled action.
func (h *Handler) PostJob(c *gin.Context) {
	var req scheduleActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if *req.ChannelID < 0 || *req.ChannelID >= h.channelCount {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "channelId out of range"})
		return
	}
	action, err := scheduler.ParseAction(req.Action)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := time.UnixMilli(req.TargetTimestamp)
	handle, err := h.sched.ScheduleAction(c.Request.Context(), *req.ChannelID, req.ScheduleID, action, target)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule action"})
		return
	}
	c.JSON(http.StatusCreated, handle)
}

// DeleteJob handles DELETE /api/jobs/:key: cancel a pending job by key.
func (h *Handler) DeleteJob(c *gin.Context) {
	key, err := scheduler.ParseJobKey(c.Param("key"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cancelled := h.sched.Cancel(c.Request.Context(), key)
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

// GetJobs handles GET /api/jobs: list all pending jobs.
func (h *Handler) GetJobs(c *gin.Context) {
	pending, err := h.sched.ListPending(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending jobs"})
		return
	}
	jobs := make([]gin.H, 0, len(pending))
	for _, p := range pending {
		jobs = append(jobs, gin.H{
			"jobKey":          p.Key.String(),
			"targetTimestamp": p.Target.UnixMilli(),
			"state":           p.State,
		})
	}
	c.JSON(http.StatusOK, jobs)
}
